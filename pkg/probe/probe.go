// Package probe runs startup checks and decides whether the application may
// continue.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckFunc returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Run executes probes in order, each under DefaultTimeout. A nil Check passes.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()
		var err error
		if p.Check != nil {
			checkCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			err = p.Check(checkCtx)
			cancel()
		}
		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}

	return results
}

// AnalyzeResults logs every result and joins the errors of failed critical
// probes.
func AnalyzeResults(logger *slog.Logger, results []Result) error {
	if logger == nil {
		logger = slog.Default()
	}
	var criticalErrors []error

	logger.Info("Startup checks", "count", len(results))
	for _, r := range results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Passed():
			logger.Info(msg)
		case r.Probe.Critical:
			logger.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			logger.Warn(msg, "error", r.Error)
		}
	}

	return errors.Join(criticalErrors...)
}
