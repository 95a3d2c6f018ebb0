package api

import (
	"net/http"
	"strconv"

	"simlink/pkg/store"
)

// RecordingHandler lists recorded sessions.
type RecordingHandler struct {
	store store.SessionStore
}

func NewRecordingHandler(st store.SessionStore) *RecordingHandler {
	return &RecordingHandler{store: st}
}

// HandleList returns sessions newest first; ?limit=N bounds the list.
func (h *RecordingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*store.SessionRecord{}
	}
	writeJSON(w, list)
}
