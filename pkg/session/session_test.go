package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simlink/pkg/config"
	"simlink/pkg/dispatch"
	"simlink/pkg/recv"
	"simlink/pkg/schema"
	"simlink/pkg/sim"
	"simlink/pkg/sim/mocksim"
	"simlink/pkg/tracker"
)

// fakeConn records outbound calls and serves queued inbound messages.
type fakeConn struct {
	mu      sync.Mutex
	sendID  uint32
	calls   []string
	inbox   [][]byte
	payload []byte
	failOn  string

	// onCall runs after a call is accepted and before it returns, like a
	// host answering on another thread.
	onCall func(name string, sendID uint32)
}

func (c *fakeConn) call(name string) error {
	c.mu.Lock()
	if name == c.failOn {
		c.mu.Unlock()
		return errors.New("E_FAIL")
	}
	c.sendID++
	c.calls = append(c.calls, name)
	id, hook := c.sendID, c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(name, id)
	}
	return nil
}

func (c *fakeConn) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbox) == 0 {
		return nil, nil
	}
	raw := c.inbox[0]
	c.inbox = c.inbox[1:]
	return raw, nil
}

func (c *fakeConn) CallDispatch(fn func([]byte)) error {
	for {
		raw, _ := c.Next()
		if raw == nil {
			return nil
		}
		fn(raw)
	}
}

func (c *fakeConn) AddToDataDefinition(uint32, string, string, uint32, float32, uint32) error {
	return c.call("AddToDataDefinition")
}

func (c *fakeConn) ClearDataDefinition(uint32) error {
	return c.call("ClearDataDefinition")
}

func (c *fakeConn) RequestDataOnSimObject(uint32, uint32, uint32, sim.Period, sim.DataRequestFlag, uint32, uint32, uint32) error {
	return c.call("RequestDataOnSimObject")
}

func (c *fakeConn) RequestDataOnSimObjectType(uint32, uint32, uint32, sim.SimObjectType) error {
	return c.call("RequestDataOnSimObjectType")
}

func (c *fakeConn) SetDataOnSimObject(_, _, _, _ uint32, data []byte) error {
	c.mu.Lock()
	c.payload = append([]byte(nil), data...)
	c.mu.Unlock()
	return c.call("SetDataOnSimObject")
}

func (c *fakeConn) SubscribeToSystemEvent(uint32, string) error {
	return c.call("SubscribeToSystemEvent")
}

func (c *fakeConn) MapClientEventToSimEvent(uint32, string) error {
	return c.call("MapClientEventToSimEvent")
}

func (c *fakeConn) AddClientEventToNotificationGroup(uint32, uint32, bool) error {
	return c.call("AddClientEventToNotificationGroup")
}

func (c *fakeConn) SetNotificationGroupPriority(uint32, sim.GroupPriority) error {
	return c.call("SetNotificationGroupPriority")
}

func (c *fakeConn) TransmitClientEvent(uint32, uint32, uint32, uint32, sim.EventFlag) error {
	return c.call("TransmitClientEvent")
}

func (c *fakeConn) LastSentPacketID() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendID, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) queue(t *testing.T, events ...recv.Event) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range events {
		raw, err := recv.Encode(ev)
		require.NoError(t, err)
		c.inbox = append(c.inbox, raw)
	}
}

var (
	latField = schema.Field{Name: "PLANE LATITUDE", Unit: "degrees", Type: schema.Float64, Tag: schema.Unused}
	lonField = schema.Field{Name: "PLANE LONGITUDE", Unit: "degrees", Type: schema.Float64, Tag: schema.Unused}
)

func TestSession_ExceptionNamesOriginatingCall(t *testing.T) {
	conn := &fakeConn{sendID: 40}
	s := New(conn)

	require.NoError(t, s.Define(1, latField, lonField))
	desc, ok := s.Tracker().Lookup(42)
	require.True(t, ok)
	assert.Equal(t, `AddToDataDefinition(1, "PLANE LONGITUDE", "degrees", float64, 0, unused)`, desc)

	conn.queue(t,
		recv.Exception{Code: recv.ExceptionNameUnrecognized, SendID: 42, Index: 2},
		recv.Exception{Code: recv.ExceptionError, SendID: 999},
		recv.Quit{},
	)

	var got []recv.Exception
	err := s.Run(context.Background(), dispatch.Config{Mode: dispatch.ModePull, PollInterval: time.Millisecond}, dispatch.Handlers{
		OnException: func(e recv.Exception) { got = append(got, e) },
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, desc, got[0].Call)
	assert.Equal(t, recv.ExceptionNameUnrecognized, got[0].Code)
	assert.Equal(t, "unrecorded call", got[1].Call)
}

func TestSession_DecodesAgainstOwnRegistry(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	require.NoError(t, s.Define(1, latField, lonField))
	require.NoError(t, s.Request(Request{ID: 5, DefineID: 1, Period: sim.PeriodSecond}))

	conn.queue(t,
		recv.SimObjectData{RequestID: 5, DefineID: 1, Data: []recv.Datum{
			{Value: recv.Float64Value(47.5)},
			{Value: recv.Float64Value(-122.2)},
		}},
		recv.Quit{},
	)

	var data []recv.SimObjectData
	err := s.Run(context.Background(), dispatch.Config{Mode: dispatch.ModePush}, dispatch.Handlers{
		OnData: func(d recv.SimObjectData) { data = append(data, d) },
	})
	require.NoError(t, err)
	require.Len(t, data, 1)
	lat, _ := data[0].Float64("PLANE LATITUDE")
	lon, _ := data[0].Float64("PLANE LONGITUDE")
	assert.Equal(t, 47.5, lat)
	assert.Equal(t, -122.2, lon)
}

func TestSession_FailedCallIsNotRecorded(t *testing.T) {
	conn := &fakeConn{failOn: "SubscribeToSystemEvent"}
	s := New(conn)

	err := s.Subscribe(3, "SimStart")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `SubscribeToSystemEvent(3, "SimStart")`)
	assert.Equal(t, 0, s.Tracker().Len())
}

func TestSession_FailedFieldIsRolledBack(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	require.NoError(t, s.AddField(1, latField))

	conn.failOn = "AddToDataDefinition"
	require.Error(t, s.AddField(1, lonField))
	require.Error(t, s.AddField(2, latField))

	sc, err := s.Registry().Resolve(1)
	require.NoError(t, err)
	require.Len(t, sc.Fields, 1)
	assert.Equal(t, "PLANE LATITUDE", sc.Fields[0].Name)
	_, err = s.Registry().Resolve(2)
	assert.ErrorIs(t, err, schema.ErrUnknownSchema)
	assert.Equal(t, 1, s.Tracker().Len())
}

func TestSession_HostRejectedFieldIsDropped(t *testing.T) {
	host := mocksim.New(mocksim.Config{AppName: "test", StartLat: 47.45, StartLon: -122.31})
	defer host.Close()
	s := New(host)

	bad := schema.Field{Name: "NOT A SIMVAR", Unit: "feet", Type: schema.Float64, Tag: schema.Unused}
	require.NoError(t, s.Define(1, latField, bad, lonField))
	require.NoError(t, s.Request(Request{ID: 1, DefineID: 1, ObjectID: sim.ObjectIDUser, Period: sim.PeriodOnce}))
	host.Quit()

	var (
		exc        []recv.Exception
		data       []recv.SimObjectData
		decodeErrs int
	)
	err := s.Run(context.Background(), dispatch.Config{Mode: dispatch.ModePull, PollInterval: time.Millisecond}, dispatch.Handlers{
		OnException:   func(e recv.Exception) { exc = append(exc, e) },
		OnData:        func(d recv.SimObjectData) { data = append(data, d) },
		OnDecodeError: func(*recv.DecodeError) { decodeErrs++ },
	})
	require.NoError(t, err)

	require.Len(t, exc, 1)
	assert.Equal(t, recv.ExceptionNameUnrecognized, exc[0].Code)
	assert.Contains(t, exc[0].Call, "NOT A SIMVAR")
	assert.Zero(t, decodeErrs)
	require.Len(t, data, 1)
	lat, _ := data[0].Float64("PLANE LATITUDE")
	lon, _ := data[0].Float64("PLANE LONGITUDE")
	assert.InDelta(t, 47.45, lat, 1e-9)
	assert.InDelta(t, -122.31, lon, 1e-9)
	assert.Len(t, s.Registry().MustResolve(1).Fields, 2)
}

func TestSession_DescribeWaitsForCallInFlight(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	var got []recv.Exception
	r := s.Router(dispatch.Handlers{OnException: func(e recv.Exception) { got = append(got, e) }})

	routed := make(chan struct{})
	conn.onCall = func(_ string, sendID uint32) {
		raw, err := recv.Encode(recv.Exception{Code: recv.ExceptionNameUnrecognized, SendID: sendID, Index: 3})
		require.NoError(t, err)
		go func() {
			defer close(routed)
			r.Route(raw)
		}()
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, s.AddField(1, latField))

	select {
	case <-routed:
	case <-time.After(2 * time.Second):
		t.Fatal("exception was not routed")
	}
	require.Len(t, got, 1)
	assert.Equal(t, `AddToDataDefinition(1, "PLANE LATITUDE", "degrees", float64, 0, unused)`, got[0].Call)
	_, err := s.Registry().Resolve(1)
	assert.ErrorIs(t, err, schema.ErrUnknownSchema)
}

func TestSession_DescribeWaitIsBounded(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn, WithRecordWait(10*time.Millisecond))

	var desc string
	conn.onCall = func(_ string, sendID uint32) { desc = s.Describe(sendID) }
	start := time.Now()
	require.NoError(t, s.Subscribe(1, "SimStart"))

	assert.Equal(t, tracker.UnrecordedCall, desc)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, `SubscribeToSystemEvent(1, "SimStart")`, s.Describe(1))
}

const (
	groupA      = 1
	eventBrakes = 1000
	eventBad    = 2000
)

func TestSession_TracksClientEventErrors(t *testing.T) {
	host := mocksim.New(mocksim.Config{AppName: "Tracking Errors"})
	defer host.Close()
	s := New(host)

	require.NoError(t, s.MapEvent(eventBrakes, "brakes"))
	require.NoError(t, s.AddToGroup(groupA, eventBad, false))
	require.NoError(t, s.SetGroupPriority(groupA, sim.GroupPriorityHighest))
	host.Quit()

	var exc []recv.Exception
	err := s.Run(context.Background(), dispatch.Config{Mode: dispatch.ModePull, PollInterval: time.Millisecond}, dispatch.Handlers{
		OnException: func(e recv.Exception) { exc = append(exc, e) },
	})
	require.NoError(t, err)

	require.Len(t, exc, 1)
	assert.Equal(t, recv.ExceptionUnrecognizedID, exc[0].Code)
	assert.Equal(t, uint32(2), exc[0].SendID)
	assert.Equal(t, uint32(3), exc[0].Index)
	assert.Equal(t, "AddClientEventToNotificationGroup(1, 2000, false)", exc[0].Call)

	snap := s.Tracker().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, `MapClientEventToSimEvent(1000, "brakes")`, snap[0].Call)
	assert.Equal(t, "SetNotificationGroupPriority(1, 1)", snap[2].Call)
}

func TestSession_ClientEventNotifications(t *testing.T) {
	host := mocksim.New(mocksim.Config{AppName: "No Callback"})
	defer host.Close()
	s := New(host)

	require.NoError(t, s.MapEvent(eventBrakes, "brakes"))
	require.NoError(t, s.AddToGroup(groupA, eventBrakes, false))
	require.NoError(t, s.SetGroupPriority(groupA, sim.GroupPriorityHighest))
	host.Press("brakes", 0)
	require.NoError(t, s.Transmit(sim.ObjectIDUser, eventBrakes, 0, uint32(sim.GroupPriorityHighest), sim.EventFlagGroupIDIsPriority))
	host.Quit()

	var events []recv.SystemEvent
	var exc []recv.Exception
	err := s.Run(context.Background(), dispatch.Config{Mode: dispatch.ModePull, PollInterval: time.Millisecond}, dispatch.Handlers{
		OnEvent:     func(e recv.SystemEvent) { events = append(events, e) },
		OnException: func(e recv.Exception) { exc = append(exc, e) },
	})
	require.NoError(t, err)

	assert.Empty(t, exc)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, uint32(groupA), e.GroupID)
		assert.Equal(t, uint32(eventBrakes), e.EventID)
	}
	assert.Equal(t, "TransmitClientEvent(0, 1000, 0, 1, 0x10)", s.Describe(4))
}

func TestSession_InvalidFieldNeverReachesHost(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)

	err := s.AddField(1, schema.Field{Name: "", Type: schema.Float64, Tag: schema.Unused})
	require.ErrorIs(t, err, schema.ErrInvalidField)
	assert.Empty(t, conn.calls)
}

func TestSession_RequestNeedsDefinition(t *testing.T) {
	s := New(&fakeConn{})
	err := s.Request(Request{ID: 1, DefineID: 9, Period: sim.PeriodOnce})
	require.ErrorIs(t, err, schema.ErrUnknownSchema)
	err = s.RequestByType(2, 9, 1000, sim.SimObjectTypeAircraft)
	require.ErrorIs(t, err, schema.ErrUnknownSchema)
}

func TestSession_ActiveRequests(t *testing.T) {
	var buf bytes.Buffer
	s := New(&fakeConn{}, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, s.Define(1, latField))

	require.NoError(t, s.Request(Request{ID: 2, DefineID: 1, Period: sim.PeriodSecond, Flags: sim.DataRequestFlagChanged}))
	require.NoError(t, s.Request(Request{ID: 1, DefineID: 1, Period: sim.PeriodOnce}))
	active := s.ActiveRequests()
	require.Len(t, active, 1)
	assert.Equal(t, "second", active[0].Period)

	// Redefining while data is flowing is allowed but logged.
	require.NoError(t, s.AddField(1, lonField))
	assert.Contains(t, buf.String(), "Definition changed while a request is active")

	require.NoError(t, s.Request(Request{ID: 2, DefineID: 1, Period: sim.PeriodNever}))
	assert.Empty(t, s.ActiveRequests())
}

func TestSession_SetData(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	require.NoError(t, s.Define(1, latField, lonField))

	err := s.SetData(1, sim.ObjectIDUser, recv.Float64Value(1))
	require.ErrorIs(t, err, ErrValueMismatch)
	err = s.SetData(1, sim.ObjectIDUser, recv.Float64Value(1), recv.Int32Value(2))
	require.ErrorIs(t, err, ErrValueMismatch)

	require.NoError(t, s.SetData(1, sim.ObjectIDUser, recv.Float64Value(47.5), recv.Float64Value(-122.2)))
	want, err := recv.EncodeData([]recv.Value{recv.Float64Value(47.5), recv.Float64Value(-122.2)})
	require.NoError(t, err)
	assert.Equal(t, want, conn.payload)
	assert.Equal(t, "SetDataOnSimObject(1, 0, 16 bytes)", s.Describe(conn.sendID))
}

func TestSession_ClearAllowsNewShape(t *testing.T) {
	s := New(&fakeConn{})
	require.NoError(t, s.Define(1, latField, lonField))
	require.NoError(t, s.Clear(1))
	_, err := s.Registry().Resolve(1)
	require.ErrorIs(t, err, schema.ErrUnknownSchema)

	require.NoError(t, s.Define(1, lonField))
	sc := s.Registry().MustResolve(1)
	assert.Len(t, sc.Fields, 1)
}

func TestSession_ApplyDefaults(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	require.NoError(t, s.Apply(config.DefaultConfig().Definitions))

	assert.Len(t, s.Schemas(), 2)
	assert.Equal(t, []string{
		"AddToDataDefinition", "AddToDataDefinition", "AddToDataDefinition", "AddToDataDefinition",
		"AddToDataDefinition", "AddToDataDefinition",
		"RequestDataOnSimObject", "RequestDataOnSimObject",
	}, conn.calls)
	assert.Equal(t, len(conn.calls), s.Tracker().Len())

	active := s.ActiveRequests()
	require.Len(t, active, 2)
	assert.True(t, active[1].Flags.Has(sim.DataRequestFlagTagged))
}

func TestSession_LoadDefinesLocallyOnly(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)
	require.NoError(t, s.Load(config.DefaultConfig().Definitions))

	assert.Len(t, s.Schemas(), 2)
	assert.Empty(t, conn.calls)
	assert.Zero(t, s.Tracker().Len())
}

func TestSession_CallObserverSeesTrackedRecords(t *testing.T) {
	conn := &fakeConn{}
	var seen []tracker.Record
	s := New(conn, WithCallObserver(func(rec tracker.Record) { seen = append(seen, rec) }))

	require.NoError(t, s.Subscribe(1, "SimStart"))
	require.NoError(t, s.Subscribe(2, "Pause"))

	require.Len(t, seen, 2)
	assert.Equal(t, uint32(2), seen[1].SendID)
	assert.Equal(t, `SubscribeToSystemEvent(2, "Pause")`, seen[1].Call)
	assert.Equal(t, s.Tracker().Snapshot(), seen)
}
