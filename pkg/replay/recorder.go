// Package replay records a host connection to SQLite and plays recorded
// sessions back as a read-only connection.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"simlink/pkg/recv"
	"simlink/pkg/sim"
	"simlink/pkg/store"
	"simlink/pkg/tracker"
)

// DefaultQueue is the number of pending writes a Recorder buffers.
const DefaultQueue = 4096

// Store is the persistence a Recorder and Player need.
// *store.SQLiteStore satisfies it.
type Store interface {
	store.SessionStore
	store.MessageStore
	store.SendStore
}

// write is one pending row. Exactly one field is set.
type write struct {
	msg  *store.Message
	send *tracker.Record
}

// Recorder wraps a connection and persists every inbound message and every
// send record handed to RecordSend. Copies are queued to a writer goroutine
// so the dispatch path never waits on the database. When the queue is full
// the write is dropped. Persistence failures and drops are logged and
// counted; they never interrupt the connection.
type Recorder struct {
	sim.Conn

	store  Store
	id     string
	logger *slog.Logger

	mu       sync.Mutex
	seq      int64
	closed   bool
	writes   chan write
	done     chan struct{}
	failures atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithQueue sets the write queue length.
func WithQueue(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.writes = make(chan write, n)
		}
	}
}

// NewRecorder starts a recorded session with the given id.
func NewRecorder(ctx context.Context, conn sim.Conn, st Store, id, app, provider string, opts ...RecorderOption) (*Recorder, error) {
	rec := &store.SessionRecord{ID: id, App: app, Provider: provider, StartedAt: time.Now()}
	if err := st.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	r := &Recorder{
		Conn:   conn,
		store:  st,
		id:     id,
		logger: slog.With("component", "recorder", "session_id", id),
		writes: make(chan write, DefaultQueue),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.writer()
	r.logger.Info("Recording started", "provider", provider)
	return r, nil
}

// SessionID returns the id the recording is stored under.
func (r *Recorder) SessionID() string { return r.id }

// Failures returns the number of writes that could not be persisted.
func (r *Recorder) Failures() int64 { return r.failures.Load() }

// Next implements sim.Source.
func (r *Recorder) Next() ([]byte, error) {
	raw, err := r.Conn.Next()
	if raw != nil {
		r.persist(raw)
	}
	return raw, err
}

// CallDispatch implements sim.Pump. Each message is queued for persistence
// before fn sees it.
func (r *Recorder) CallDispatch(fn func(raw []byte)) error {
	return r.Conn.CallDispatch(func(raw []byte) {
		r.persist(raw)
		fn(raw)
	})
}

// RecordSend queues one tracker record. It matches session.WithCallObserver.
func (r *Recorder) RecordSend(rec tracker.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueue(write{send: &rec})
}

// Close flushes pending writes, ends the recording and closes the wrapped
// connection.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.writes)
	}
	n := r.seq
	r.mu.Unlock()
	<-r.done

	if err := r.store.EndSession(context.Background(), r.id, time.Now()); err != nil {
		r.logger.Warn("Failed to end recording", "error", err)
	}
	r.logger.Info("Recording stopped", "messages", n, "failures", r.failures.Load())
	return r.Conn.Close()
}

func (r *Recorder) persist(raw []byte) {
	h, err := recv.PeekHeader(raw)
	if err != nil {
		r.failures.Add(1)
		r.logger.Warn("Not recording malformed message", "size", len(raw), "error", err)
		return
	}
	size := int(h.Size)
	if size < recv.HeaderSize || size > len(raw) {
		size = len(raw)
	}
	m := &store.Message{
		Kind:       uint32(h.ID),
		Size:       uint32(size),
		Raw:        append([]byte(nil), raw[:size]...),
		ReceivedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.Seq = r.seq
	r.enqueue(write{msg: m})
}

// enqueue must be called with r.mu held.
func (r *Recorder) enqueue(w write) {
	if r.closed {
		return
	}
	select {
	case r.writes <- w:
	default:
		r.failures.Add(1)
		if w.msg != nil {
			r.logger.Warn("Recording queue full, dropping message", "seq", w.msg.Seq)
		} else {
			r.logger.Warn("Recording queue full, dropping send", "send_id", w.send.SendID)
		}
	}
}

func (r *Recorder) writer() {
	defer close(r.done)
	ctx := context.Background()
	for w := range r.writes {
		switch {
		case w.msg != nil:
			if err := r.store.AppendMessage(ctx, r.id, w.msg); err != nil {
				r.failures.Add(1)
				r.logger.Warn("Failed to record message", "seq", w.msg.Seq, "kind", w.msg.Kind, "error", err)
			}
		case w.send != nil:
			if err := r.store.SaveSend(ctx, r.id, *w.send); err != nil {
				r.failures.Add(1)
				r.logger.Warn("Failed to record send", "send_id", w.send.SendID, "error", err)
			}
		}
	}
}
