package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"simlink/pkg/sim"
)

// Mode selects how messages are fetched from the host.
type Mode string

const (
	// ModePull polls Source.Next.
	ModePull Mode = "pull"
	// ModePush pumps Pump.CallDispatch and routes on a consumer goroutine.
	ModePush Mode = "push"
)

// ParseMode validates a mode name. Empty means pull.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePull:
		return ModePull, nil
	case ModePush:
		return ModePush, nil
	}
	return "", fmt.Errorf("unknown dispatch mode %q", s)
}

// Loop settings.
type Config struct {
	Mode         Mode
	PollInterval time.Duration
	PushInterval time.Duration
	Buffer       int
}

// Run drives conn with the configured mode until a Quit message, a transport
// error or ctx cancellation.
func (r *Router) Run(ctx context.Context, conn sim.Conn, cfg Config) error {
	if cfg.Mode == ModePush {
		return r.RunPush(ctx, conn, cfg.PushInterval, cfg.Buffer)
	}
	return r.RunPull(ctx, conn, cfg.PollInterval)
}

// RunPull drains every available message, then waits interval before polling
// again. An empty poll is not an error. It returns nil after a Quit message.
func (r *Router) RunPull(ctx context.Context, src sim.Source, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := src.Next()
			if err != nil {
				return fmt.Errorf("next message: %w", err)
			}
			if raw == nil {
				break
			}
			if r.Route(raw) {
				r.logger.Info("Host quit, dispatch stopped")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunPush calls pump.CallDispatch every interval. The host callback only
// copies each message onto a channel of the given buffer size; a single
// consumer goroutine decodes and routes them in order. Messages after a
// Quit are dropped.
func (r *Router) RunPush(ctx context.Context, pump sim.Pump, interval time.Duration, buffer int) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	if buffer <= 0 {
		buffer = 64
	}

	msgs := make(chan []byte, buffer)
	quitCh := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		quit := false
		for raw := range msgs {
			if quit {
				continue
			}
			if r.Route(raw) {
				quit = true
				close(quitCh)
			}
		}
	}()

	defer func() {
		close(msgs)
		wg.Wait()
	}()

	enqueue := func(raw []byte) {
		buf := append([]byte(nil), raw...)
		select {
		case msgs <- buf:
		case <-quitCh:
		case <-ctx.Done():
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := pump.CallDispatch(enqueue); err != nil {
			return fmt.Errorf("call dispatch: %w", err)
		}

		select {
		case <-quitCh:
			r.logger.Info("Host quit, dispatch stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
