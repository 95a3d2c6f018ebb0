package logging

import (
	"strings"
	"sync"
)

const captureLines = 50

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	limit int
}

// NewCaptureWriter creates a writer holding at most limit lines.
func NewCaptureWriter(limit int) *LogCaptureWriter {
	return &LogCaptureWriter{limit: limit}
}

// GlobalLogCapture captures the server log for the API.
var GlobalLogCapture = NewCaptureWriter(captureLines)

// GlobalEventCapture captures routed host events for the API.
var GlobalEventCapture = NewCaptureWriter(captureLines)

// Write implements io.Writer. Each call is stored as one line.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	if w.limit > 0 && len(w.lines) > w.limit {
		w.lines = append(w.lines[:0], w.lines[len(w.lines)-w.limit:]...)
	}
	return len(p), nil
}

// GetLastLine returns the most recent line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.lines) == 0 {
		return ""
	}
	return w.lines[len(w.lines)-1]
}

// Lines returns a copy of the retained lines, oldest first.
func (w *LogCaptureWriter) Lines() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.lines...)
}
