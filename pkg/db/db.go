package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d := &DB{db}
	// Single connection: the recorder writes from the dispatch thread while
	// the API reads.
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneSessions removes recorded sessions started before now-olderThan,
// together with their messages and sends. It returns the number of sessions
// removed.
func (d *DB) PruneSessions(olderThan time.Duration) (int64, error) {
	deadline := time.Now().Add(-olderThan).UnixNano()
	res, err := d.Exec("DELETE FROM sessions WHERE started_at < ?", deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			app TEXT,
			provider TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind INTEGER,
			size INTEGER,
			raw BLOB NOT NULL,
			received_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS sends (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			send_id INTEGER NOT NULL,
			call TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, send_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: add ended_at to databases created before it existed
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('sessions') WHERE name='ended_at'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE sessions ADD COLUMN ended_at INTEGER"); err != nil {
			return fmt.Errorf("failed to add ended_at column: %w", err)
		}
	}

	return nil
}
