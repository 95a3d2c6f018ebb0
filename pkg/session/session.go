// Package session ties one host connection to the schema registry and the
// outbound request tracker that decoding and exception reporting depend on.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"simlink/pkg/dispatch"
	"simlink/pkg/recv"
	"simlink/pkg/schema"
	"simlink/pkg/sim"
	"simlink/pkg/tracker"
)

// ErrValueMismatch is returned by SetData when values do not fit the schema.
var ErrValueMismatch = errors.New("values do not match schema")

// Request describes a data request on a single object.
type Request struct {
	ID       uint32
	DefineID schema.ID
	ObjectID uint32
	Period   sim.Period
	Flags    sim.DataRequestFlag
	Origin   uint32
	Interval uint32
	Limit    uint32
}

// ActiveRequest is a periodic request the host is still serving.
type ActiveRequest struct {
	ID       uint32              `json:"id"`
	DefineID schema.ID           `json:"define_id"`
	ObjectID uint32              `json:"object_id"`
	Period   string              `json:"period"`
	Flags    sim.DataRequestFlag `json:"flags"`
}

// DefaultRecordWait bounds how long Describe waits for a call that is still
// being recorded.
const DefaultRecordWait = 250 * time.Millisecond

// field names one datum added to a definition.
type field struct {
	defineID schema.ID
	name     string
}

// Session owns a host connection together with its registry and tracker.
// Outbound calls are safe for concurrent use.
type Session struct {
	ID uuid.UUID

	conn     sim.Conn
	registry *schema.Registry
	calls    *tracker.Tracker
	logger   *slog.Logger
	observe  func(tracker.Record)

	// sendMu pairs each outbound call with the send id read right after it.
	sendMu sync.Mutex
	// inflight is closed once the current call is in the tracker.
	inflight   atomic.Pointer[chan struct{}]
	recordWait time.Duration

	mu     sync.Mutex
	active map[uint32]ActiveRequest
	fields map[uint32]field // by send id of the AddToDataDefinition
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracker replaces the default unbounded tracker.
func WithTracker(t *tracker.Tracker) Option {
	return func(s *Session) { s.calls = t }
}

// WithRegistry shares an existing registry.
func WithRegistry(r *schema.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithID sets the session id, e.g. to match a recording.
func WithID(id uuid.UUID) Option {
	return func(s *Session) { s.ID = id }
}

// WithCallObserver is called with every record added to the tracker.
func WithCallObserver(fn func(tracker.Record)) Option {
	return func(s *Session) { s.observe = fn }
}

// WithRecordWait sets how long Describe waits for an in-flight call.
func WithRecordWait(d time.Duration) Option {
	return func(s *Session) { s.recordWait = d }
}

// New creates a session over conn.
func New(conn sim.Conn, opts ...Option) *Session {
	s := &Session{
		ID:         uuid.New(),
		conn:       conn,
		recordWait: DefaultRecordWait,
		active:     make(map[uint32]ActiveRequest),
		fields:     make(map[uint32]field),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = schema.NewRegistry()
	}
	if s.calls == nil {
		s.calls = tracker.New(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session", "session_id", s.ID.String())
	return s
}

func (s *Session) Conn() sim.Conn             { return s.conn }
func (s *Session) Registry() *schema.Registry { return s.registry }
func (s *Session) Tracker() *tracker.Tracker  { return s.calls }
func (s *Session) Decoder() *recv.Decoder     { return recv.NewDecoder(s.registry) }
func (s *Session) Logger() *slog.Logger       { return s.logger }
func (s *Session) Schemas() []schema.Schema   { return s.registry.Snapshot() }

// Describe names the call that produced sendID. The host may answer a call
// before the call returns here, so an id that is not yet recorded waits for
// the call in flight, up to the record wait.
func (s *Session) Describe(sendID uint32) string {
	if !s.calls.Contains(sendID) {
		if ch := s.inflight.Load(); ch != nil {
			t := time.NewTimer(s.recordWait)
			select {
			case <-*ch:
			case <-t.C:
			}
			t.Stop()
		}
	}
	return s.calls.Describe(sendID)
}

// AddField appends f to definition id on both sides of the connection. The
// local field is removed again when the call fails, or when the host later
// rejects it with an exception routed through Router.
func (s *Session) AddField(id schema.ID, f schema.Field) error {
	s.warnIfActive(id, "field added")
	if err := s.registry.Define(id, f); err != nil {
		return err
	}
	err := s.sendTracked(func() error {
		return s.conn.AddToDataDefinition(uint32(id), f.Name, f.Unit, uint32(f.Type), f.Epsilon, f.Tag)
	}, func(sendID uint32) {
		s.mu.Lock()
		s.fields[sendID] = field{defineID: id, name: f.Name}
		s.mu.Unlock()
	}, "AddToDataDefinition(%d, %q, %q, %s, %g, %s)", id, f.Name, f.Unit, f.Type, f.Epsilon, tagString(f.Tag))
	if err != nil {
		s.registry.Remove(id, f.Name)
		return err
	}
	return nil
}

// Define appends fields in order. It stops at the first failure.
func (s *Session) Define(id schema.ID, fields ...schema.Field) error {
	for _, f := range fields {
		if err := s.AddField(id, f); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes definition id so it can be defined again.
func (s *Session) Clear(id schema.ID) error {
	s.warnIfActive(id, "definition cleared")
	s.registry.Clear(id)
	s.mu.Lock()
	for sendID, f := range s.fields {
		if f.defineID == id {
			delete(s.fields, sendID)
		}
	}
	s.mu.Unlock()
	return s.send(func() error {
		return s.conn.ClearDataDefinition(uint32(id))
	}, "ClearDataDefinition(%d)", id)
}

// Request asks for data on one object. PeriodNever cancels a previous request
// with the same id.
func (s *Session) Request(r Request) error {
	if _, err := s.registry.Resolve(r.DefineID); err != nil {
		return fmt.Errorf("request %d: %w", r.ID, err)
	}
	err := s.send(func() error {
		return s.conn.RequestDataOnSimObject(r.ID, uint32(r.DefineID), r.ObjectID, r.Period, r.Flags, r.Origin, r.Interval, r.Limit)
	}, "RequestDataOnSimObject(%d, %d, %d, %s, %d)", r.ID, r.DefineID, r.ObjectID, r.Period, r.Flags)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Period == sim.PeriodNever || r.Period == sim.PeriodOnce {
		delete(s.active, r.ID)
		return nil
	}
	s.active[r.ID] = ActiveRequest{
		ID:       r.ID,
		DefineID: r.DefineID,
		ObjectID: r.ObjectID,
		Period:   r.Period.String(),
		Flags:    r.Flags,
	}
	return nil
}

// RequestByType asks once for every object of objType within radius meters.
func (s *Session) RequestByType(requestID uint32, defineID schema.ID, radius uint32, objType sim.SimObjectType) error {
	if _, err := s.registry.Resolve(defineID); err != nil {
		return fmt.Errorf("request %d: %w", requestID, err)
	}
	return s.send(func() error {
		return s.conn.RequestDataOnSimObjectType(requestID, uint32(defineID), radius, objType)
	}, "RequestDataOnSimObjectType(%d, %d, %d, %d)", requestID, defineID, radius, objType)
}

// SetData writes one value per field of defineID to objectID.
func (s *Session) SetData(defineID schema.ID, objectID uint32, values ...recv.Value) error {
	sc, err := s.registry.Resolve(defineID)
	if err != nil {
		return fmt.Errorf("set data: %w", err)
	}
	if len(values) != len(sc.Fields) {
		return fmt.Errorf("set data on %d: %w: %d values for %d fields", defineID, ErrValueMismatch, len(values), len(sc.Fields))
	}
	for i, v := range values {
		if v.Type != sc.Fields[i].Type {
			return fmt.Errorf("set data on %d: %w: %s is %s, got %s", defineID, ErrValueMismatch, sc.Fields[i].Name, sc.Fields[i].Type, v.Type)
		}
	}
	payload, err := recv.EncodeData(values)
	if err != nil {
		return fmt.Errorf("set data on %d: %w", defineID, err)
	}
	return s.send(func() error {
		return s.conn.SetDataOnSimObject(uint32(defineID), objectID, 0, 1, payload)
	}, "SetDataOnSimObject(%d, %d, %d bytes)", defineID, objectID, len(payload))
}

// Subscribe maps eventID to a named host system event.
func (s *Session) Subscribe(eventID uint32, name string) error {
	return s.send(func() error {
		return s.conn.SubscribeToSystemEvent(eventID, name)
	}, "SubscribeToSystemEvent(%d, %q)", eventID, name)
}

// MapEvent binds client event eventID to the sim event name, e.g. "brakes".
func (s *Session) MapEvent(eventID uint32, name string) error {
	return s.send(func() error {
		return s.conn.MapClientEventToSimEvent(eventID, name)
	}, "MapClientEventToSimEvent(%d, %q)", eventID, name)
}

// AddToGroup adds a mapped client event to notification group groupID.
func (s *Session) AddToGroup(groupID, eventID uint32, maskable bool) error {
	return s.send(func() error {
		return s.conn.AddClientEventToNotificationGroup(groupID, eventID, maskable)
	}, "AddClientEventToNotificationGroup(%d, %d, %t)", groupID, eventID, maskable)
}

// SetGroupPriority enables notification group groupID.
func (s *Session) SetGroupPriority(groupID uint32, priority sim.GroupPriority) error {
	return s.send(func() error {
		return s.conn.SetNotificationGroupPriority(groupID, priority)
	}, "SetNotificationGroupPriority(%d, %d)", groupID, priority)
}

// Transmit sends a mapped client event to objectID. With
// sim.EventFlagGroupIDIsPriority, groupID is a sim.GroupPriority.
func (s *Session) Transmit(objectID, eventID, data, groupID uint32, flags sim.EventFlag) error {
	return s.send(func() error {
		return s.conn.TransmitClientEvent(objectID, eventID, data, groupID, flags)
	}, "TransmitClientEvent(%d, %d, %d, %d, 0x%x)", objectID, eventID, data, groupID, uint32(flags))
}

// ActiveRequests lists periodic requests ordered by id.
func (s *Session) ActiveRequests() []ActiveRequest {
	s.mu.Lock()
	out := make([]ActiveRequest, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Router builds a router that decodes against this session's registry and
// resolves exceptions through Describe. An exception raised by an
// AddToDataDefinition removes that field before h.OnException runs.
func (s *Session) Router(h dispatch.Handlers, opts ...dispatch.Option) *dispatch.Router {
	onException := h.OnException
	h.OnException = func(e recv.Exception) {
		s.dropRejectedField(e)
		if onException != nil {
			onException(e)
		}
	}
	return dispatch.NewRouter(s.Decoder(), s, h, opts...)
}

func (s *Session) dropRejectedField(e recv.Exception) {
	s.mu.Lock()
	f, ok := s.fields[e.SendID]
	delete(s.fields, e.SendID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if s.registry.Remove(f.defineID, f.name) {
		s.logger.Warn("Host rejected field",
			"define_id", f.defineID,
			"field", f.name,
			"code", e.Code.String())
	}
}

// Run routes host messages to h until Quit, a transport error or ctx ends.
func (s *Session) Run(ctx context.Context, cfg dispatch.Config, h dispatch.Handlers, opts ...dispatch.Option) error {
	s.logger.Info("Dispatch started", "mode", cfg.Mode)
	err := s.Router(h, opts...).Run(ctx, s.conn, cfg)
	s.logger.Info("Dispatch stopped", "error", err)
	return err
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// send issues one outbound call and records its description under the send id
// the host assigned. A failed call is not recorded.
func (s *Session) send(fn func() error, format string, args ...any) error {
	return s.sendTracked(fn, nil, format, args...)
}

// sendTracked is send with a hook that sees the send id before the record
// becomes visible to Describe.
func (s *Session) sendTracked(fn func() error, tracked func(sendID uint32), format string, args ...any) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	done := make(chan struct{})
	s.inflight.Store(&done)
	defer func() {
		s.inflight.Store(nil)
		close(done)
	}()

	call := fmt.Sprintf(format, args...)
	if callErr := fn(); callErr != nil {
		return fmt.Errorf("%s: %w", call, callErr)
	}
	sendID, err := s.conn.LastSentPacketID()
	if err != nil {
		s.logger.Warn("Send id unavailable", "call", call, "error", err)
		return nil
	}
	if tracked != nil {
		tracked(sendID)
	}
	rec := tracker.Record{SendID: sendID, Call: call, At: time.Now()}
	s.calls.Add(rec)
	if s.observe != nil {
		s.observe(rec)
	}
	s.logger.Debug("Sent", "send_id", sendID, "call", call)
	return nil
}

func (s *Session) warnIfActive(id schema.ID, what string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.active {
		if r.DefineID == id {
			s.logger.Warn("Definition changed while a request is active",
				"define_id", id, "request_id", r.ID, "change", what)
		}
	}
}

func tagString(tag uint32) string {
	if tag == schema.Unused {
		return "unused"
	}
	return fmt.Sprint(tag)
}
