// Package mocksim provides an in-memory host that speaks the same wire format
// as the simulator, for development without a running sim and for tests.
package mocksim

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"simlink/pkg/recv"
	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// userObjectID is the object id the host reports for the user aircraft.
const userObjectID uint32 = 1

// maxRadiusMeters is the largest radius accepted for by-type requests.
const maxRadiusMeters = 200000

// Parameter positions reported in Exception.Index, counting the connection
// handle as 1.
const (
	paramDefineID = 2
	paramName     = 3
	paramObjectID = 4
	paramType     = 5
	paramFlags    = 6
)

// Config holds settings for the mock host.
type Config struct {
	AppName      string
	Title        string
	StartLat     float64
	StartLon     float64
	StartAlt     float64 // feet
	StartHeading float64
	GroundSpeed  float64 // knots
	Tick         time.Duration
	QuitAfter    time.Duration // 0 runs until Quit or Close
}

type dataRequest struct {
	id       uint32
	defineID uint32
	objectID uint32
	period   sim.Period
	flags    sim.DataRequestFlag
	origin   uint32
	interval uint32
	limit    uint32

	periods uint32
	sent    uint32
	last    []recv.Value
}

// Host implements sim.Conn against a simulated aircraft.
type Host struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	ac     *aircraft

	sendID   uint32
	inbox    [][]byte
	defs     map[uint32][]schema.Field
	requests map[uint32]*dataRequest
	events   map[uint32]string

	clientEvents map[uint32]string
	groups       map[uint32]*notificationGroup

	elapsed time.Duration
	started bool
	quit    bool
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a host and queues its Open message.
func New(cfg Config) *Host {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.Title == "" {
		cfg.Title = "Cessna Skyhawk G1000"
	}
	h := &Host{
		cfg:      cfg,
		logger:   slog.Default().With("component", "mocksim"),
		ac:       newAircraft(cfg),
		defs:     make(map[uint32][]schema.Field),
		requests: make(map[uint32]*dataRequest),
		events:   make(map[uint32]string),
		stopCh:   make(chan struct{}),

		clientEvents: make(map[uint32]string),
		groups:       make(map[uint32]*notificationGroup),
	}
	h.enqueue(recv.Open{
		ApplicationName:    "KittyHawk",
		ApplicationVersion: recv.Version{Major: 11, Minor: 0},
		ApplicationBuild:   recv.Version{Major: 282174, Minor: 999},
		SimConnectVersion:  recv.Version{Major: 11, Minor: 0},
		SimConnectBuild:    recv.Version{Major: 62651, Minor: 3},
	})
	h.logger.Info("Mock host open", "app", cfg.AppName, "title", cfg.Title)
	return h
}

// Start advances the simulation every Tick on a background goroutine.
func (h *Host) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.Step(h.cfg.Tick)
			}
		}
	}()
}

// Step advances simulated time by dt: the aircraft moves, subscribed events
// fire and due data requests are served.
func (h *Host) Step(dt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.quit || h.closed {
		return
	}

	if !h.started {
		h.started = true
		h.fire("SimStart", 0)
	}

	prev := h.elapsed
	h.elapsed += dt
	h.ac.Fly(dt)

	crossed := func(every time.Duration) bool {
		return h.elapsed/every > prev/every
	}
	second := crossed(time.Second)

	h.fireFrame(dt)
	if second {
		h.fire("1sec", 0)
	}
	if crossed(4 * time.Second) {
		h.fire("4sec", 0)
	}
	if crossed(time.Second / 6) {
		h.fire("6Hz", 0)
	}

	for _, r := range h.sortedRequests() {
		switch r.period {
		case sim.PeriodVisualFrame, sim.PeriodSimFrame:
			h.serve(r)
		case sim.PeriodSecond:
			if second {
				h.serve(r)
			}
		}
	}

	if h.cfg.QuitAfter > 0 && h.elapsed >= h.cfg.QuitAfter {
		h.quitLocked()
	}
}

// Quit queues the host's Quit message. Later outbound calls fail with
// sim.ErrNotConnected.
func (h *Host) Quit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quitLocked()
}

func (h *Host) quitLocked() {
	if h.quit {
		return
	}
	h.fire("SimStop", 0)
	h.enqueue(recv.Quit{})
	h.quit = true
	h.logger.Info("Mock host quit", "elapsed", h.elapsed)
}

// Inject queues an arbitrary event.
func (h *Host) Inject(ev recv.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueue(ev)
}

// InjectRaw queues raw bytes as a message.
func (h *Host) InjectRaw(raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbox = append(h.inbox, append([]byte(nil), raw...))
}

// Position returns the simulated aircraft position and altitude in feet.
func (h *Host) Position() (orb.Point, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ac.Point(), h.ac.altitude
}

// Pending returns the number of queued messages.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inbox)
}

// Next implements sim.Source.
func (h *Host) Next() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inbox) == 0 {
		if h.closed {
			return nil, sim.ErrNotConnected
		}
		return nil, nil
	}
	raw := h.inbox[0]
	h.inbox[0] = nil
	h.inbox = h.inbox[1:]
	return raw, nil
}

// CallDispatch implements sim.Pump. fn runs without the host lock held.
func (h *Host) CallDispatch(fn func(raw []byte)) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return sim.ErrNotConnected
	}
	batch := h.inbox
	h.inbox = nil
	h.mu.Unlock()

	for _, raw := range batch {
		fn(raw)
	}
	return nil
}

// LastSentPacketID implements sim.Conn.
func (h *Host) LastSentPacketID() (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, sim.ErrNotConnected
	}
	return h.sendID, nil
}

// Close stops the simulation loop.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.stopCh)
	h.wg.Wait()
	return nil
}

// AddToDataDefinition implements sim.Conn.
func (h *Host) AddToDataDefinition(defineID uint32, datumName, unitsName string, datumType uint32, epsilon float32, datumID uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	t := schema.DataType(datumType)
	if strings.TrimSpace(datumName) == "" {
		h.exception(recv.ExceptionError, paramName)
		return nil
	}
	v, ok := lookupVariable(datumName)
	if !ok {
		h.exception(recv.ExceptionNameUnrecognized, paramName)
		return nil
	}
	if t.Width() == 0 || t == schema.StringV || !v.accepts(t) {
		h.exception(recv.ExceptionInvalidDataType, paramType)
		return nil
	}
	if datumID != schema.Unused {
		for _, f := range h.defs[defineID] {
			if f.Tag == datumID {
				h.exception(recv.ExceptionDatumID, paramFlags)
				return nil
			}
		}
	}

	h.defs[defineID] = append(h.defs[defineID], schema.Field{
		Name:    datumName,
		Unit:    unitsName,
		Type:    t,
		Epsilon: epsilon,
		Tag:     datumID,
	})
	return nil
}

// ClearDataDefinition implements sim.Conn.
func (h *Host) ClearDataDefinition(defineID uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}
	if _, ok := h.defs[defineID]; !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramDefineID)
		return nil
	}
	delete(h.defs, defineID)
	return nil
}

// RequestDataOnSimObject implements sim.Conn.
func (h *Host) RequestDataOnSimObject(requestID, defineID, objectID uint32, period sim.Period, flags sim.DataRequestFlag, origin, interval, limit uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	fields, ok := h.defs[defineID]
	if !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramName)
		return nil
	}
	if objectID != sim.ObjectIDUser && objectID != userObjectID {
		h.exception(recv.ExceptionUnrecognizedID, paramObjectID)
		return nil
	}
	if flags.Has(sim.DataRequestFlagTagged) {
		for _, f := range fields {
			if !f.HasTag() {
				h.exception(recv.ExceptionDatumID, paramFlags)
				return nil
			}
		}
	}

	r := &dataRequest{
		id:       requestID,
		defineID: defineID,
		objectID: userObjectID,
		period:   period,
		flags:    flags,
		origin:   origin,
		interval: interval,
		limit:    limit,
	}
	switch period {
	case sim.PeriodNever:
		delete(h.requests, requestID)
	case sim.PeriodOnce:
		delete(h.requests, requestID)
		h.serve(r)
	default:
		h.requests[requestID] = r
	}
	return nil
}

// RequestDataOnSimObjectType implements sim.Conn. Only the user aircraft
// exists, so at most one entry is returned.
func (h *Host) RequestDataOnSimObjectType(requestID, defineID, radiusMeters uint32, objType sim.SimObjectType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	fields, ok := h.defs[defineID]
	if !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramName)
		return nil
	}
	if radiusMeters > maxRadiusMeters {
		h.exception(recv.ExceptionOutOfBounds, paramObjectID)
		return nil
	}
	switch objType {
	case sim.SimObjectTypeUser, sim.SimObjectTypeAll, sim.SimObjectTypeAircraft:
	default:
		return nil
	}

	data, err := h.readAll(fields)
	if err != nil {
		h.logger.Warn("Mock read failed", "define_id", defineID, "error", err)
		return nil
	}
	h.enqueue(recv.SimObjectData{
		RequestID:   requestID,
		ObjectID:    userObjectID,
		DefineID:    schema.ID(defineID),
		EntryNumber: 1,
		OutOf:       1,
		ByType:      true,
		Data:        data,
	})
	return nil
}

// SetDataOnSimObject implements sim.Conn. Writable variables are applied to
// the aircraft; read-only ones are ignored.
func (h *Host) SetDataOnSimObject(defineID, objectID uint32, flags uint32, arrayCount uint32, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	fields, ok := h.defs[defineID]
	if !ok {
		h.exception(recv.ExceptionUnrecognizedID, paramDefineID)
		return nil
	}
	if objectID != sim.ObjectIDUser && objectID != userObjectID {
		h.exception(recv.ExceptionUnrecognizedID, paramName)
		return nil
	}
	values, err := recv.DecodeValues(schema.Schema{ID: schema.ID(defineID), Fields: fields}, data)
	if err != nil {
		h.exception(recv.ExceptionDataError, paramFlags)
		return nil
	}
	for i, f := range fields {
		v, _ := lookupVariable(f.Name)
		x, ok := values[i].Float64()
		if v.set == nil || !ok {
			continue
		}
		v.set(h.ac, x/v.factor(f.Unit))
	}
	return nil
}

// SubscribeToSystemEvent implements sim.Conn.
func (h *Host) SubscribeToSystemEvent(eventID uint32, eventName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(); err != nil {
		return err
	}

	name, ok := canonicalEvent(eventName)
	if !ok {
		h.exception(recv.ExceptionNameUnrecognized, paramName)
		return nil
	}
	if _, dup := h.events[eventID]; dup {
		h.exception(recv.ExceptionEventIDDuplicate, paramDefineID)
		return nil
	}
	h.events[eventID] = name

	// State events report the current state right away.
	switch name {
	case "Sim":
		h.enqueue(recv.SystemEvent{EventID: eventID, Data: 1})
	case "Pause":
		h.enqueue(recv.SystemEvent{EventID: eventID, Data: 0})
	case "FlightLoaded":
		h.enqueue(recv.Filename{EventID: eventID, FileName: `flights\other\mock.FLT`})
	case "AircraftLoaded":
		h.enqueue(recv.Filename{EventID: eventID, FileName: `SimObjects\Airplanes\Asobo_C172sp_AS1000\aircraft.CFG`})
	}
	return nil
}

var systemEvents = []string{
	"1sec", "4sec", "6Hz", "AircraftLoaded", "Crashed", "CrashReset",
	"FlightLoaded", "FlightSaved", "Frame", "Pause", "Paused", "PauseFrame",
	"PositionChanged", "Sim", "SimStart", "SimStop", "Sound", "Unpaused", "View",
	"ObjectAdded", "ObjectRemoved",
}

func canonicalEvent(name string) (string, bool) {
	for _, e := range systemEvents {
		if strings.EqualFold(e, name) {
			return e, true
		}
	}
	return "", false
}

// begin mints the send id for an outbound call.
func (h *Host) begin() error {
	if h.closed || h.quit {
		return sim.ErrNotConnected
	}
	h.sendID++
	return nil
}

func (h *Host) exception(code recv.ExceptionCode, index uint32) {
	h.logger.Debug("Mock exception", "code", code.String(), "send_id", h.sendID, "index", index)
	h.enqueue(recv.Exception{Code: code, SendID: h.sendID, Index: index})
}

func (h *Host) enqueue(ev recv.Event) {
	raw, err := recv.Encode(ev)
	if err != nil {
		h.logger.Error("Mock encode failed", "kind", ev.Kind().String(), "error", err)
		return
	}
	h.inbox = append(h.inbox, raw)
}

func (h *Host) fire(name string, data uint32) {
	for _, id := range h.subscribers(name) {
		h.enqueue(recv.SystemEvent{EventID: id, Data: data})
	}
}

func (h *Host) fireFrame(dt time.Duration) {
	for _, id := range h.subscribers("Frame") {
		h.enqueue(recv.Frame{EventID: id, FrameRate: float32(1 / dt.Seconds()), SimSpeed: 1})
	}
}

func (h *Host) subscribers(name string) []uint32 {
	var ids []uint32
	for id, n := range h.events {
		if n == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Host) sortedRequests() []*dataRequest {
	out := make([]*dataRequest, 0, len(h.requests))
	for _, r := range h.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// serve sends one period's worth of data for r, honoring origin, interval,
// limit and the changed and tagged flags.
func (h *Host) serve(r *dataRequest) {
	r.periods++
	if r.periods <= r.origin {
		return
	}
	if (r.periods-r.origin-1)%(r.interval+1) != 0 {
		return
	}
	if r.limit > 0 && r.sent >= r.limit {
		return
	}

	fields, ok := h.defs[r.defineID]
	if !ok {
		return
	}
	data, err := h.readAll(fields)
	if err != nil {
		h.logger.Warn("Mock read failed", "define_id", r.defineID, "error", err)
		return
	}

	values := make([]recv.Value, len(data))
	for i, d := range data {
		values[i] = d.Value
	}

	changed := r.flags.Has(sim.DataRequestFlagChanged)
	tagged := r.flags.Has(sim.DataRequestFlagTagged)
	if changed && r.last != nil && len(r.last) == len(data) {
		var diff []recv.Datum
		for i, d := range data {
			if differs(r.last[i], d.Value, fields[i].Epsilon) {
				diff = append(diff, d)
			}
		}
		if len(diff) == 0 {
			return
		}
		if tagged {
			data = diff
		}
	}

	r.last = values
	r.sent++
	h.enqueue(recv.SimObjectData{
		RequestID:   r.id,
		ObjectID:    r.objectID,
		DefineID:    schema.ID(r.defineID),
		Flags:       r.flags,
		EntryNumber: 1,
		OutOf:       1,
		Tagged:      tagged,
		Data:        data,
	})
}

func (h *Host) readAll(fields []schema.Field) ([]recv.Datum, error) {
	data := make([]recv.Datum, len(fields))
	for i, f := range fields {
		v, ok := lookupVariable(f.Name)
		if !ok {
			continue
		}
		val, err := v.read(h.ac, f)
		if err != nil {
			return nil, err
		}
		data[i] = recv.Datum{Index: i, Tag: f.Tag, Known: true, Field: f, Value: val}
	}
	return data, nil
}

func differs(a, b recv.Value, epsilon float32) bool {
	x, okA := a.Float64()
	y, okB := b.Float64()
	if okA && okB {
		return math.Abs(x-y) > float64(epsilon)
	}
	return a.String() != b.String()
}
