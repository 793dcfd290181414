package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes per-domain admission counters, using the same
// per-label CounterVec/GaugeVec pattern used across this module's other
// components.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	deniedTotal   *prometheus.CounterVec
	backoffTotal  *prometheus.CounterVec
	currentDelay  *prometheus.GaugeVec
}

// NewMetrics registers the rate limiter's vectors under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_ratelimit_requests_total",
			Help: "Total try_acquire calls per domain.",
		}, []string{"domain"}),
		deniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_ratelimit_denied_total",
			Help: "Total denied try_acquire calls per domain.",
		}, []string{"domain"}),
		backoffTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_ratelimit_backoff_triggered_total",
			Help: "Total report_failure calls that extended backoff per domain.",
		}, []string{"domain"}),
		currentDelay: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bbpipeline_ratelimit_current_delay_ms",
			Help: "Current backoff delay in milliseconds per domain.",
		}, []string{"domain"}),
	}
}

// Observe copies a domain's Stats snapshot into the registered vectors.
func (m *Metrics) Observe(domain string, s Stats) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(domain).Add(0) // ensure series exists
	m.currentDelay.WithLabelValues(domain).Set(float64(s.CurrentDelay.Milliseconds()))
}

// RecordRequest increments the per-domain request counter, and the denied
// counter when allowed is false.
func (m *Metrics) RecordRequest(domain string, allowed bool) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(domain).Inc()
	if !allowed {
		m.deniedTotal.WithLabelValues(domain).Inc()
	}
}

// RecordBackoffTriggered increments the backoff counter for domain.
func (m *Metrics) RecordBackoffTriggered(domain string) {
	if m == nil {
		return
	}
	m.backoffTotal.WithLabelValues(domain).Inc()
}
