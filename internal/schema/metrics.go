package schema

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for a RowValidator.
type Metrics struct {
	rowsValid   prometheus.Counter
	rowsInvalid prometheus.Counter
}

// NewMetrics registers a schema validator's counters under reg, labeled
// by schema name.
func NewMetrics(reg prometheus.Registerer, schemaName string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"schema": schemaName}
	return &Metrics{
		rowsValid: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_schema_rows_valid_total",
			Help:        "Total rows that passed schema validation.",
			ConstLabels: labels,
		}),
		rowsInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_schema_rows_invalid_total",
			Help:        "Total rows that failed schema validation.",
			ConstLabels: labels,
		}),
	}
}

// RecordRow increments the valid/invalid counter for one validated row.
func (m *Metrics) RecordRow(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.rowsValid.Inc()
	} else {
		m.rowsInvalid.Inc()
	}
}
