package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simlink/pkg/version"
)

// NewServer creates and configures the HTTP server.
// Nil handlers leave their endpoints unregistered. A nil gatherer uses the
// default Prometheus registry.
func NewServer(addr string, status *StatusHandler, calls *CallsHandler, schemas *SchemaHandler, events *EventHub, track *TrackHandler, recordings *RecordingHandler, gatherer prometheus.Gatherer, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Connection state
	if status != nil {
		mux.HandleFunc("GET /api/status", status.HandleStatus)
	}

	// 3. Outbound calls and active requests
	if calls != nil {
		mux.HandleFunc("GET /api/requests", calls.HandleList)
		mux.HandleFunc("GET /api/requests/{send_id}", calls.HandleDescribe)
	}

	// 4. Data definitions
	if schemas != nil {
		mux.HandleFunc("GET /api/schemas", schemas.HandleList)
	}

	// 5. Event stream
	if events != nil {
		mux.Handle("GET /ws/events", events)
	}

	// 6. Position track
	if track != nil {
		mux.HandleFunc("GET /api/track", track.HandleTrack)
	}

	// 7. Recordings
	if recordings != nil {
		mux.HandleFunc("GET /api/recordings", recordings.HandleList)
	}

	// 8. Logs
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/events", handleEventLog)

	// 9. Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// 10. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
