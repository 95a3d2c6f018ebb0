package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"simlink/pkg/recv"
	"simlink/pkg/sim"
	"simlink/pkg/store"
	"simlink/pkg/tracker"
)

var (
	// ErrReadOnly is returned by every outbound call on a Player.
	ErrReadOnly = errors.New("replay connection is read-only")
	// ErrNoSession is returned when no recorded session matches.
	ErrNoSession = errors.New("no recorded session")
)

// Player is a read-only sim.Conn that yields a recorded session in order.
// When the recording is exhausted without a Quit message, one is synthesized
// so dispatch loops end.
type Player struct {
	info   store.SessionRecord
	sends  []tracker.Record
	logger *slog.Logger

	mu       sync.Mutex
	msgs     []*store.Message
	pos      int
	quitSent bool
	closed   bool

	realtime bool
	now      func() time.Time
	start    time.Time
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithRealtime releases each message only once as much time has passed since
// playback started as had passed in the recording.
func WithRealtime(on bool) PlayerOption {
	return func(p *Player) { p.realtime = on }
}

// Load reads a recorded session. An empty id selects the latest one.
func Load(ctx context.Context, st Store, id string, opts ...PlayerOption) (*Player, error) {
	var info *store.SessionRecord
	var err error
	if id == "" {
		info, err = st.LatestSession(ctx)
	} else {
		info, err = st.GetSession(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if info == nil {
		if id == "" {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}

	msgs, err := st.ListMessages(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	sends, err := st.ListSends(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sends: %w", err)
	}

	p := &Player{
		info:   *info,
		msgs:   msgs,
		sends:  sends,
		logger: slog.With("component", "replay", "session_id", info.ID),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.start = p.now()
	p.logger.Info("Replay loaded", "messages", len(msgs), "sends", len(sends), "realtime", p.realtime)
	return p, nil
}

// Session returns the metadata of the recording being played.
func (p *Player) Session() store.SessionRecord { return p.info }

// Restore adds every recorded send to t so replayed exceptions resolve to the
// calls that caused them.
func (p *Player) Restore(t *tracker.Tracker) {
	for _, rec := range p.sends {
		t.Add(rec)
	}
}

// Remaining returns the number of recorded messages not yet delivered.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs) - p.pos
}

// next returns the next due message. Callers hold p.mu.
func (p *Player) next() ([]byte, error) {
	if p.closed {
		return nil, sim.ErrNotConnected
	}
	if p.pos >= len(p.msgs) {
		if p.quitSent {
			return nil, nil
		}
		p.quitSent = true
		p.logger.Info("Replay finished")
		return recv.Encode(recv.Quit{})
	}
	m := p.msgs[p.pos]
	if p.realtime && p.now().Sub(p.start) < m.ReceivedAt.Sub(p.info.StartedAt) {
		return nil, nil
	}
	p.pos++
	if recv.Kind(m.Kind) == recv.KindQuit {
		p.quitSent = true
	}
	return m.Raw, nil
}

// Next implements sim.Source.
func (p *Player) Next() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next()
}

// CallDispatch implements sim.Pump by delivering every due message.
func (p *Player) CallDispatch(fn func(raw []byte)) error {
	p.mu.Lock()
	var batch [][]byte
	for {
		raw, err := p.next()
		if err != nil {
			p.mu.Unlock()
			return err
		}
		if raw == nil {
			break
		}
		batch = append(batch, raw)
	}
	p.mu.Unlock()

	for _, raw := range batch {
		fn(raw)
	}
	return nil
}

func (p *Player) AddToDataDefinition(uint32, string, string, uint32, float32, uint32) error {
	return ErrReadOnly
}
func (p *Player) ClearDataDefinition(uint32) error { return ErrReadOnly }
func (p *Player) RequestDataOnSimObject(uint32, uint32, uint32, sim.Period, sim.DataRequestFlag, uint32, uint32, uint32) error {
	return ErrReadOnly
}
func (p *Player) RequestDataOnSimObjectType(uint32, uint32, uint32, sim.SimObjectType) error {
	return ErrReadOnly
}
func (p *Player) SetDataOnSimObject(uint32, uint32, uint32, uint32, []byte) error { return ErrReadOnly }
func (p *Player) SubscribeToSystemEvent(uint32, string) error                     { return ErrReadOnly }
func (p *Player) MapClientEventToSimEvent(uint32, string) error                   { return ErrReadOnly }
func (p *Player) AddClientEventToNotificationGroup(uint32, uint32, bool) error    { return ErrReadOnly }
func (p *Player) SetNotificationGroupPriority(uint32, sim.GroupPriority) error    { return ErrReadOnly }
func (p *Player) TransmitClientEvent(uint32, uint32, uint32, uint32, sim.EventFlag) error {
	return ErrReadOnly
}
func (p *Player) LastSentPacketID() (uint32, error) { return 0, ErrReadOnly }

// Close stops playback.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
