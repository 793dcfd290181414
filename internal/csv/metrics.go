package csv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for a Parser, following
// the same construction-injected AttachMetrics pattern used by this
// module's other components.
type Metrics struct {
	rowsParsed     prometheus.Counter
	rowsSkipped    prometheus.Counter
	rowsWithErrors prometheus.Counter
	bytesRead      prometheus.Counter
	rowsPerSecond  prometheus.Gauge
}

// NewMetrics registers the parser's counters and gauges under reg.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"parser": name}
	return &Metrics{
		rowsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_csv_rows_parsed_total",
			Help:        "Total rows successfully parsed.",
			ConstLabels: labels,
		}),
		rowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_csv_rows_skipped_total",
			Help:        "Total rows skipped (empty rows and a consumed header row).",
			ConstLabels: labels,
		}),
		rowsWithErrors: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_csv_rows_errored_total",
			Help:        "Total rows that failed to parse.",
			ConstLabels: labels,
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_csv_bytes_read_total",
			Help:        "Total bytes consumed from the input stream.",
			ConstLabels: labels,
		}),
		rowsPerSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bbpipeline_csv_rows_per_second",
			Help:        "Most recently observed parse throughput.",
			ConstLabels: labels,
		}),
	}
}

// AttachMetrics wires m to p; subsequent parses report through it.
func (p *Parser) AttachMetrics(m *Metrics) { p.metrics = m }

// Observe copies a Snapshot into the registered gauges/counters. Counters
// are set via Add against the delta from the last observation since
// Prometheus counters cannot be set directly.
func (m *Metrics) Observe(prev, cur Snapshot) {
	if m == nil {
		return
	}
	if d := cur.RowsParsed - prev.RowsParsed; d > 0 {
		m.rowsParsed.Add(float64(d))
	}
	if d := cur.RowsSkipped - prev.RowsSkipped; d > 0 {
		m.rowsSkipped.Add(float64(d))
	}
	if d := cur.RowsWithErrors - prev.RowsWithErrors; d > 0 {
		m.rowsWithErrors.Add(float64(d))
	}
	if d := cur.BytesRead - prev.BytesRead; d > 0 {
		m.bytesRead.Add(float64(d))
	}
	m.rowsPerSecond.Set(cur.RowsPerSecond)
}
