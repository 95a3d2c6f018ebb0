package api

import (
	"net/http"
	"sync"
	"time"

	"simlink/pkg/recv"
	"simlink/pkg/sim"
)

// StatusResponse is the API response structure.
type StatusResponse struct {
	State         sim.State       `json:"state"`
	SessionID     string          `json:"session_id"`
	Provider      string          `json:"provider"`
	Host          string          `json:"host,omitempty"`
	HostVersion   string          `json:"host_version,omitempty"`
	Messages      int64           `json:"messages"`
	Exceptions    int64           `json:"exceptions"`
	LastException *recv.Exception `json:"last_exception,omitempty"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
}

// StatusHandler follows the connection lifecycle from routed events.
type StatusHandler struct {
	mu     sync.RWMutex
	status StatusResponse
	now    func() time.Time
}

func NewStatusHandler(sessionID, provider string) *StatusHandler {
	return &StatusHandler{
		status: StatusResponse{State: sim.StateConnected, SessionID: sessionID, Provider: provider},
		now:    time.Now,
	}
}

// Observe updates the status from one routed event. It matches
// dispatch.Handlers.OnAny.
func (h *StatusHandler) Observe(ev recv.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	at := h.now()
	h.status.Messages++
	h.status.LastMessageAt = &at

	switch e := ev.(type) {
	case recv.Open:
		h.status.State = sim.StateOpen
		h.status.Host = e.ApplicationName
		h.status.HostVersion = e.ApplicationVersion.String()
	case recv.Quit:
		h.status.State = sim.StateQuit
	case recv.Exception:
		h.status.Exceptions++
		h.status.LastException = &e
	}
}

// UpdateState sets the state directly, e.g. when the connection drops.
func (h *StatusHandler) UpdateState(s sim.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.State = s
}

// Status returns a copy of the current status.
func (h *StatusHandler) Status() StatusResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Status())
}
