package logging

import "log/slog"

// EnableTrace turns on per-message debug output. Set from log.trace.
var EnableTrace = false

// Trace logs at DEBUG level only when EnableTrace is set, so the dispatch
// hot path skips attribute formatting by default.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
