package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordLookup(t *testing.T) {
	tr := New(0)
	tr.Record(42, "AddToDataDefinition(...)")

	call, ok := tr.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, "AddToDataDefinition(...)", call)
	assert.Equal(t, "AddToDataDefinition(...)", tr.Describe(42))

	_, ok = tr.Lookup(7)
	assert.False(t, ok)
	assert.Equal(t, UnrecordedCall, tr.Describe(7))

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Recorded)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestTracker_ContainsIsNotCounted(t *testing.T) {
	tr := New(0)
	tr.Record(42, "call")

	assert.True(t, tr.Contains(42))
	assert.False(t, tr.Contains(7))
	stats := tr.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestTracker_ReRecordMovesToBack(t *testing.T) {
	tr := New(0)
	tr.Record(1, "first")
	tr.Record(2, "second")
	tr.Record(1, "again")

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint32(2), snap[0].SendID)
	assert.Equal(t, uint32(1), snap[1].SendID)
	assert.Equal(t, "again", snap[1].Call)
}

func TestTracker_EvictsOldestFirst(t *testing.T) {
	tr := New(3)
	for id := uint32(1); id <= 5; id++ {
		tr.Record(id, fmt.Sprintf("call %d", id))
	}

	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, UnrecordedCall, tr.Describe(1))
	assert.Equal(t, UnrecordedCall, tr.Describe(2))
	assert.Equal(t, "call 3", tr.Describe(3))
	assert.Equal(t, "call 5", tr.Describe(5))
	assert.Equal(t, int64(2), tr.Stats().Evicted)
}

func TestTracker_Unbounded(t *testing.T) {
	tr := New(0)
	for id := uint32(0); id < 10000; id++ {
		tr.Record(id, "call")
	}
	assert.Equal(t, 10000, tr.Len())
	assert.Equal(t, 0, tr.Capacity())
}

func TestTracker_Forget(t *testing.T) {
	tr := New(0)
	tr.Record(9, "SubscribeToSystemEvent(1, \"SimStart\")")
	tr.Forget(9)
	tr.Forget(10)

	_, ok := tr.Lookup(9)
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_AddKeepsTimestamp(t *testing.T) {
	tr := New(0)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.Add(Record{SendID: 3, Call: "restored", At: at})

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, at, snap[0].At)
}

func TestTracker_ConcurrentRecordAndLookup(t *testing.T) {
	tr := New(64)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for id := uint32(0); id < 2000; id++ {
			tr.Record(id, "call")
		}
	}()
	go func() {
		defer wg.Done()
		for id := uint32(0); id < 2000; id++ {
			desc := tr.Describe(id)
			if desc != "call" && desc != UnrecordedCall {
				t.Errorf("unexpected description %q", desc)
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 64, tr.Len())
	assert.Equal(t, "call", tr.Describe(1999))
}
