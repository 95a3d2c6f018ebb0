// Package tracker remembers the outbound calls of a session by send id so
// that asynchronous exceptions can be traced back to the call that caused them.
package tracker

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// UnrecordedCall describes a send id that was never recorded or was evicted.
const UnrecordedCall = "unrecorded call"

// Record is one outbound call.
type Record struct {
	SendID uint32    `json:"send_id"`
	Call   string    `json:"call"`
	At     time.Time `json:"at"`
}

// Stats holds lookup counters. Fields are accessed atomically.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Evicted  int64 `json:"evicted"`
}

// Tracker is an insertion-ordered store of Records keyed by send id.
// It is safe for concurrent Record and Lookup.
type Tracker struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List
	index    map[uint32]*list.Element
	stats    Stats
	now      func() time.Time
}

// New creates a tracker holding at most capacity records; the oldest are
// evicted first. A capacity of 0 means unbounded.
func New(capacity int) *Tracker {
	if capacity < 0 {
		capacity = 0
	}
	return &Tracker{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint32]*list.Element),
		now:      time.Now,
	}
}

// Record stores the description of the call that produced sendID.
// Recording an id again replaces its description.
func (t *Tracker) Record(sendID uint32, call string) {
	t.Add(Record{SendID: sendID, Call: call, At: t.now()})
}

// Add stores a complete record, as restored from a recording.
func (t *Tracker) Add(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.index[rec.SendID]; ok {
		t.order.Remove(el)
	}
	t.index[rec.SendID] = t.order.PushBack(rec)
	atomic.AddInt64(&t.stats.Recorded, 1)

	for t.capacity > 0 && t.order.Len() > t.capacity {
		oldest := t.order.Front()
		t.order.Remove(oldest)
		delete(t.index, oldest.Value.(Record).SendID)
		atomic.AddInt64(&t.stats.Evicted, 1)
	}
}

// Lookup returns the description recorded for sendID.
func (t *Tracker) Lookup(sendID uint32) (string, bool) {
	t.mu.RLock()
	el, ok := t.index[sendID]
	var call string
	if ok {
		call = el.Value.(Record).Call
	}
	t.mu.RUnlock()

	if ok {
		atomic.AddInt64(&t.stats.Hits, 1)
	} else {
		atomic.AddInt64(&t.stats.Misses, 1)
	}
	return call, ok
}

// Contains reports whether sendID is recorded without counting a lookup.
func (t *Tracker) Contains(sendID uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[sendID]
	return ok
}

// Describe is like Lookup but falls back to UnrecordedCall.
func (t *Tracker) Describe(sendID uint32) string {
	if call, ok := t.Lookup(sendID); ok {
		return call
	}
	return UnrecordedCall
}

// Forget drops the record for sendID, typically after it was consulted.
func (t *Tracker) Forget(sendID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.index[sendID]; ok {
		t.order.Remove(el)
		delete(t.index, sendID)
	}
}

// Len returns the number of records held.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.order.Len()
}

// Capacity returns the configured bound, 0 when unbounded.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Snapshot returns a copy of all records, oldest first.
func (t *Tracker) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Record))
	}
	return out
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Recorded: atomic.LoadInt64(&t.stats.Recorded),
		Hits:     atomic.LoadInt64(&t.stats.Hits),
		Misses:   atomic.LoadInt64(&t.stats.Misses),
		Evicted:  atomic.LoadInt64(&t.stats.Evicted),
	}
}
