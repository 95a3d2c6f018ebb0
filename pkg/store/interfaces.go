package store

import (
	"context"
	"time"

	"simlink/pkg/tracker"
)

// SessionRecord describes one recorded connection.
type SessionRecord struct {
	ID        string     `json:"id"`
	App       string     `json:"app"`
	Provider  string     `json:"provider"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Messages  int        `json:"messages"`
	Sends     int        `json:"sends"`
}

// Message is one raw inbound message in delivery order.
type Message struct {
	Seq        int64     `json:"seq"`
	Kind       uint32    `json:"kind"`
	Size       uint32    `json:"size"`
	Raw        []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// SessionStore handles recorded session metadata.
type SessionStore interface {
	CreateSession(ctx context.Context, s *SessionRecord) error
	EndSession(ctx context.Context, id string, at time.Time) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	LatestSession(ctx context.Context) (*SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)
}

// MessageStore handles raw inbound messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID string, m *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
}

// SendStore handles outbound call descriptions keyed by send id.
type SendStore interface {
	SaveSend(ctx context.Context, sessionID string, rec tracker.Record) error
	ListSends(ctx context.Context, sessionID string) ([]tracker.Record, error)
}
