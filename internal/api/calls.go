package api

import (
	"net/http"
	"strconv"

	"simlink/pkg/session"
	"simlink/pkg/tracker"
)

// ActiveLister lists periodic requests still being served.
// *session.Session satisfies it.
type ActiveLister interface {
	ActiveRequests() []session.ActiveRequest
}

// CallsHandler exposes the outbound request tracker.
type CallsHandler struct {
	calls  *tracker.Tracker
	active ActiveLister
}

func NewCallsHandler(calls *tracker.Tracker, active ActiveLister) *CallsHandler {
	return &CallsHandler{calls: calls, active: active}
}

// CallsResponse lists tracked calls oldest first.
type CallsResponse struct {
	Capacity int                     `json:"capacity"`
	Stats    tracker.Stats           `json:"stats"`
	Records  []tracker.Record        `json:"records"`
	Active   []session.ActiveRequest `json:"active"`
}

// DescribeResponse resolves one send id.
type DescribeResponse struct {
	SendID   uint32 `json:"send_id"`
	Call     string `json:"call"`
	Recorded bool   `json:"recorded"`
}

func (h *CallsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	resp := CallsResponse{
		Capacity: h.calls.Capacity(),
		Stats:    h.calls.Stats(),
		Records:  h.calls.Snapshot(),
		Active:   []session.ActiveRequest{},
	}
	if h.active != nil {
		resp.Active = h.active.ActiveRequests()
	}
	writeJSON(w, resp)
}

func (h *CallsHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("send_id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid send id", http.StatusBadRequest)
		return
	}
	call, ok := h.calls.Lookup(uint32(id))
	if !ok {
		call = tracker.UnrecordedCall
	}
	writeJSON(w, DescribeResponse{SendID: uint32(id), Call: call, Recorded: ok})
}
