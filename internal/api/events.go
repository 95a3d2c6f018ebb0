package api

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"simlink/pkg/recv"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// EventEnvelope is one websocket message.
type EventEnvelope struct {
	Kind  recv.Kind  `json:"kind"`
	At    time.Time  `json:"at"`
	Event recv.Event `json:"event"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub streams routed events to websocket clients as JSON. Slow clients
// lose messages rather than stall dispatch.
type EventHub struct {
	upgrader websocket.Upgrader
	buffer   int
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewEventHub creates a hub that buffers up to buffer messages per client.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local dashboard only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		buffer:  buffer,
		logger:  slog.With("component", "events"),
		clients: make(map[*eventClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *EventHub) Dropped() int64 { return h.dropped.Load() }

// Publish broadcasts ev. It matches dispatch.Handlers.OnAny.
func (h *EventHub) Publish(ev recv.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := sonic.Marshal(EventEnvelope{Kind: ev.Kind(), At: time.Now(), Event: ev})
	if err != nil {
		h.logger.Warn("Failed to encode event", "kind", ev.Kind(), "error", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	c := &eventClient{conn: conn, send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *EventHub) readPump(c *eventClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
