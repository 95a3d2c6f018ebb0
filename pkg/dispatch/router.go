// Package dispatch pulls raw messages from the host, decodes them and routes
// the resulting events to per-kind handlers in delivery order.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"simlink/pkg/logging"
	"simlink/pkg/recv"
	"simlink/pkg/tracker"
)

// Handlers holds optional callbacks per event kind. Nil callbacks are skipped.
type Handlers struct {
	OnOpen             func(recv.Open)
	OnQuit             func(recv.Quit)
	OnException        func(recv.Exception)
	OnEvent            func(recv.SystemEvent)
	OnObjectAddRemove  func(recv.ObjectAddRemove)
	OnFilename         func(recv.Filename)
	OnFrame            func(recv.Frame)
	OnData             func(recv.SimObjectData)
	OnAssignedObjectID func(recv.AssignedObjectID)
	OnSystemState      func(recv.SystemState)
	OnUnknown          func(recv.Unknown)

	// OnDecodeError receives every message that failed to decode.
	OnDecodeError func(*recv.DecodeError)
	// OnAny sees every decoded event after its kind handler ran.
	OnAny func(recv.Event)
}

// Describer resolves a send id to the call that produced it.
// *tracker.Tracker satisfies it.
type Describer interface {
	Describe(sendID uint32) string
}

// Router decodes and routes messages. Route is not safe for concurrent use;
// both run loops call it from a single goroutine.
type Router struct {
	dec      *recv.Decoder
	calls    Describer
	handlers Handlers
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// tracerName identifies dispatch spans.
const tracerName = "simlink/dispatch"

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for decode errors and exceptions.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracerProvider sets where Route spans go. The global provider is used
// otherwise, which is a no-op until one is installed.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Router) { r.tracer = tp.Tracer(tracerName) }
}

// NewRouter creates a router. calls may be nil, in which case exceptions
// carry tracker.UnrecordedCall.
func NewRouter(dec *recv.Decoder, calls Describer, h Handlers, opts ...Option) *Router {
	r := &Router{
		dec:      dec,
		calls:    calls,
		handlers: h,
		logger:   slog.Default().With("component", "dispatch"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decodes one raw message and hands it to its handler. It reports
// whether the message was a Quit. Decode failures and handler panics are
// logged and never propagate.
func (r *Router) Route(raw []byte) (quit bool) {
	_, span := r.tracer.Start(context.Background(), "dispatch.Route", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.Int("message.size", len(raw)))

	ev, err := r.dec.Decode(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		r.decodeFailed(err, len(raw))
	}
	if ev == nil {
		return false
	}

	kind := ev.Kind().String()
	span.SetAttributes(attribute.String("message.kind", kind))
	r.metrics.message(kind)
	logging.Trace(r.logger, "Message", "kind", kind, "size", len(raw))

	if exc, ok := ev.(recv.Exception); ok {
		exc.Call = r.describe(exc.SendID)
		r.metrics.exception(exc.Code.String())
		r.logger.Warn("Host exception",
			"code", exc.Code.String(),
			"send_id", exc.SendID,
			"index", exc.Index,
			"call", exc.Call)
		span.SetAttributes(
			attribute.String("exception.code", exc.Code.String()),
			attribute.Int64("exception.send_id", int64(exc.SendID)),
		)
		ev = exc
	}

	r.safely(kind, func() { r.deliver(ev) })
	if r.handlers.OnAny != nil {
		r.safely(kind, func() { r.handlers.OnAny(ev) })
	}

	_, quit = ev.(recv.Quit)
	return quit
}

func (r *Router) describe(sendID uint32) string {
	if r.calls == nil {
		return tracker.UnrecordedCall
	}
	return r.calls.Describe(sendID)
}

func (r *Router) decodeFailed(err error, n int) {
	var de *recv.DecodeError
	if !errors.As(err, &de) {
		r.logger.Warn("Decode failed", "size", n, "error", err)
		return
	}

	r.metrics.decodeError(de.Reason(), de.Kind.String())
	args := []any{"kind", de.Kind.String(), "size", de.Size, "error", de.Err}
	if de.HasSchema() {
		args = append(args, "schema", de.SchemaID)
	}
	if de.Detail != "" {
		args = append(args, "detail", de.Detail)
	}
	r.logger.Warn("Decode failed", args...)

	if r.handlers.OnDecodeError != nil {
		r.safely(de.Kind.String(), func() { r.handlers.OnDecodeError(de) })
	}
}

func (r *Router) deliver(ev recv.Event) {
	h := r.handlers
	switch e := ev.(type) {
	case recv.Open:
		if h.OnOpen != nil {
			h.OnOpen(e)
		}
	case recv.Quit:
		if h.OnQuit != nil {
			h.OnQuit(e)
		}
	case recv.Exception:
		if h.OnException != nil {
			h.OnException(e)
		}
	case recv.SystemEvent:
		if h.OnEvent != nil {
			h.OnEvent(e)
		}
	case recv.ObjectAddRemove:
		if h.OnObjectAddRemove != nil {
			h.OnObjectAddRemove(e)
		}
	case recv.Filename:
		if h.OnFilename != nil {
			h.OnFilename(e)
		}
	case recv.Frame:
		if h.OnFrame != nil {
			h.OnFrame(e)
		}
	case recv.SimObjectData:
		if h.OnData != nil {
			h.OnData(e)
		}
	case recv.AssignedObjectID:
		if h.OnAssignedObjectID != nil {
			h.OnAssignedObjectID(e)
		}
	case recv.SystemState:
		if h.OnSystemState != nil {
			h.OnSystemState(e)
		}
	case recv.Unknown:
		if h.OnUnknown != nil {
			h.OnUnknown(e)
		}
	}
}

func (r *Router) safely(kind string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.panicked(kind)
			r.logger.Error("Handler panicked", "kind", kind, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
