package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes attempt counters and circuit-breaker state, implemented
// directly against client_golang rather than a domain-specific metrics
// wrapper.
type Metrics struct {
	attemptsTotal  *prometheus.CounterVec
	circuitOpen    *prometheus.GaugeVec
	retriesTotal   *prometheus.CounterVec
}

// NewMetrics registers the executor's vectors under reg, labeled by a
// caller-supplied operation name.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_resilience_attempts_total",
			Help: "Total operation attempts by outcome.",
		}, []string{"operation", "outcome"}),
		circuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bbpipeline_resilience_circuit_open",
			Help: "1 if the circuit breaker for this operation is open, else 0.",
		}, []string{"operation"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_resilience_retries_total",
			Help: "Total retry attempts (excludes the initial attempt).",
		}, []string{"operation"}),
	}
}

// Observe records stats for a named operation's executor after a call.
func (m *Metrics) Observe(operation string, s Stats) {
	if m == nil {
		return
	}
	open := 0.0
	if s.CircuitOpen {
		open = 1.0
	}
	m.circuitOpen.WithLabelValues(operation).Set(open)
}

// RecordAttempt increments the attempt counter for operation/outcome.
func (m *Metrics) RecordAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRetry increments the retry counter for operation.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}
