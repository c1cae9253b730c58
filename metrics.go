package authcore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	renewals   *prometheus.CounterVec
	sessions   *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Register, login and logout calls by outcome.",
		}, []string{"operation", "outcome"}),

		renewals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_total",
			Help:      "Requests seen by the renewal step, by access token state.",
		}, []string{"state"}),

		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_writes_total",
			Help:      "Session store operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) operation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) renewal(state RenewalState) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) session(op string, outcome interface{ String() string }) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(op, outcome.String()).Inc()
}
