package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"simlink/pkg/db"
	"simlink/pkg/tracker"
)

// Store defines the repository interface.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	SessionStore
	MessageStore
	SendStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

const sessionColumns = `s.id, s.app, s.provider, s.started_at, s.ended_at,
	(SELECT count(*) FROM messages m WHERE m.session_id = s.id),
	(SELECT count(*) FROM sends d WHERE d.session_id = s.id)`

func (s *SQLiteStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, app, provider, started_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.App, rec.Provider, rec.StartedAt.UnixNano())
	return err
}

func (s *SQLiteStore) EndSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, at.UnixNano(), id)
	return err
}

// GetSession returns nil when id is unknown.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	return scanSession(row)
}

// LatestSession returns the most recently started session, nil when none.
func (s *SQLiteStore) LatestSession(ctx context.Context) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_at DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns sessions newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&rec.ID, &rec.App, &rec.Provider, &started, &ended, &rec.Messages, &rec.Sends)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	rec.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		rec.EndedAt = &t
	}
	return &rec, nil
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, m *Message) error {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, kind, size, raw, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, m.Seq, m.Kind, m.Size, m.Raw, m.ReceivedAt.UnixNano())
	return err
}

// ListMessages returns the messages of a session in delivery order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, size, raw, received_at FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var at int64
		if err := rows.Scan(&m.Seq, &m.Kind, &m.Size, &m.Raw, &at); err != nil {
			return nil, err
		}
		m.ReceivedAt = time.Unix(0, at)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- Sends ---

// SaveSend stores rec; a repeated send id replaces the earlier description.
func (s *SQLiteStore) SaveSend(ctx context.Context, sessionID string, rec tracker.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sends (session_id, send_id, call, sent_at) VALUES (?, ?, ?, ?)`,
		sessionID, rec.SendID, rec.Call, rec.At.UnixNano())
	return err
}

// ListSends returns the send records of a session oldest first.
func (s *SQLiteStore) ListSends(ctx context.Context, sessionID string) ([]tracker.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT send_id, call, sent_at FROM sends WHERE session_id = ? ORDER BY sent_at, send_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tracker.Record
	for rows.Next() {
		var rec tracker.Record
		var at int64
		if err := rows.Scan(&rec.SendID, &rec.Call, &at); err != nil {
			return nil, err
		}
		rec.At = time.Unix(0, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
