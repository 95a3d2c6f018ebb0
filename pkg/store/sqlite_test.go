package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"simlink/pkg/db"
	"simlink/pkg/tracker"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	testSessions(t, ctx, store)
	testMessages(t, ctx, store)
	testSends(t, ctx, store)
}

func testSessions(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Sessions", func(t *testing.T) {
		base := time.Now().Add(-time.Hour)
		for i, id := range []string{"first", "second"} {
			rec := &SessionRecord{ID: id, App: "simlink", Provider: "mock", StartedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := store.CreateSession(ctx, rec); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
		}

		latest, err := store.LatestSession(ctx)
		if err != nil {
			t.Fatalf("LatestSession failed: %v", err)
		}
		if latest == nil || latest.ID != "second" {
			t.Fatalf("expected latest session 'second', got %+v", latest)
		}
		if latest.EndedAt != nil {
			t.Error("expected open session to have no end time")
		}

		end := time.Now()
		if err := store.EndSession(ctx, "first", end); err != nil {
			t.Fatalf("EndSession failed: %v", err)
		}
		first, err := store.GetSession(ctx, "first")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if first.EndedAt == nil || !first.EndedAt.Equal(time.Unix(0, end.UnixNano())) {
			t.Errorf("unexpected end time %v", first.EndedAt)
		}

		missing, err := store.GetSession(ctx, "nope")
		if err != nil || missing != nil {
			t.Errorf("expected nil, nil for unknown session, got %v, %v", missing, err)
		}

		all, err := store.ListSessions(ctx, 0)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(all) != 2 || all[0].ID != "second" {
			t.Errorf("expected newest first, got %d sessions", len(all))
		}
		one, _ := store.ListSessions(ctx, 1)
		if len(one) != 1 {
			t.Errorf("expected limit to apply, got %d", len(one))
		}
	})
}

func testMessages(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Messages", func(t *testing.T) {
		raws := [][]byte{{12, 0, 0, 0, 4, 0, 0, 0, 3, 0, 0, 0}, {12, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0}}
		for i, raw := range raws {
			m := &Message{Seq: int64(i + 1), Kind: uint32(raw[8]), Size: 12, Raw: raw}
			if err := store.AppendMessage(ctx, "first", m); err != nil {
				t.Fatalf("AppendMessage failed: %v", err)
			}
		}
		if err := store.AppendMessage(ctx, "first", &Message{Seq: 1, Raw: raws[0]}); err == nil {
			t.Error("expected duplicate sequence number to fail")
		}

		got, err := store.ListMessages(ctx, "first")
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got))
		}
		if got[0].Kind != 3 || got[1].Kind != 0 || string(got[1].Raw) != string(raws[1]) {
			t.Errorf("messages out of order or altered: %+v", got)
		}

		sess, _ := store.GetSession(ctx, "first")
		if sess.Messages != 2 {
			t.Errorf("expected message count 2, got %d", sess.Messages)
		}
	})
}

func testSends(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Sends", func(t *testing.T) {
		at := time.Now()
		recs := []tracker.Record{
			{SendID: 7, Call: "ClearDataDefinition(1)", At: at},
			{SendID: 8, Call: "SubscribeToSystemEvent(1, \"SimStart\")", At: at.Add(time.Millisecond)},
			{SendID: 7, Call: "ClearDataDefinition(2)", At: at.Add(2 * time.Millisecond)},
		}
		for _, rec := range recs {
			if err := store.SaveSend(ctx, "second", rec); err != nil {
				t.Fatalf("SaveSend failed: %v", err)
			}
		}

		got, err := store.ListSends(ctx, "second")
		if err != nil {
			t.Fatalf("ListSends failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected repeated send id to replace, got %d records", len(got))
		}
		if got[0].SendID != 8 || got[1].Call != "ClearDataDefinition(2)" {
			t.Errorf("unexpected sends %+v", got)
		}
	})
}
