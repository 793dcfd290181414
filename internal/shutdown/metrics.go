package shutdown

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for an Orchestrator.
type Metrics struct {
	phaseTransitions *prometheus.CounterVec
	triggers         *prometheus.CounterVec
	statesSaved      prometheus.Counter
	stateSaveFailed  prometheus.Counter
}

// NewMetrics registers an orchestrator's counters under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		phaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_shutdown_phase_transitions_total",
			Help: "Count of shutdown phase transitions, labeled by phase.",
		}, []string{"phase"}),
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_shutdown_triggers_total",
			Help: "Count of shutdown triggers, labeled by trigger cause.",
		}, []string{"trigger"}),
		statesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "bbpipeline_shutdown_states_saved_total",
			Help: "Total component state snapshots persisted during shutdown.",
		}),
		stateSaveFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bbpipeline_shutdown_state_save_failures_total",
			Help: "Total failures persisting shutdown state snapshots.",
		}),
	}
}

// RecordPhase increments the transition counter for p.
func (m *Metrics) RecordPhase(p Phase) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(p.String()).Inc()
}

// RecordTrigger increments the trigger counter for t.
func (m *Metrics) RecordTrigger(t Trigger) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(t.String()).Inc()
}

// RecordStateSaved increments the saved-state counters.
func (m *Metrics) RecordStateSaved(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.statesSaved.Inc()
	} else {
		m.stateSaveFailed.Inc()
	}
}
