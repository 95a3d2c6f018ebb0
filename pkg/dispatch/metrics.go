package dispatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts routed messages. A nil *Metrics records nothing.
type Metrics struct {
	mu sync.Mutex

	messagesTotal     *prometheus.CounterVec
	decodeErrorsTotal *prometheus.CounterVec
	exceptionsTotal   *prometheus.CounterVec
	handlerPanics     *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newDispatchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simlink",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the dispatch collectors. A nil registerer uses the
// default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:        registerer,
		messagesTotal:     newDispatchCounterVec("messages_total", "Messages decoded and routed, by kind", []string{"kind"}),
		decodeErrorsTotal: newDispatchCounterVec("decode_errors_total", "Messages that failed to decode, by reason and kind", []string{"reason", "kind"}),
		exceptionsTotal:   newDispatchCounterVec("exceptions_total", "Exceptions reported by the host, by code", []string{"code"}),
		handlerPanics:     newDispatchCounterVec("handler_panics_total", "Handlers that panicked, by message kind", []string{"kind"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.messagesTotal, m.decodeErrorsTotal, m.exceptionsTotal, m.handlerPanics} {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) message(kind string) {
	if m != nil {
		m.messagesTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) decodeError(reason, kind string) {
	if m != nil {
		m.decodeErrorsTotal.WithLabelValues(reason, kind).Inc()
	}
}

func (m *Metrics) exception(code string) {
	if m != nil {
		m.exceptionsTotal.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) panicked(kind string) {
	if m != nil {
		m.handlerPanics.WithLabelValues(kind).Inc()
	}
}
