package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes arena occupancy as Prometheus gauges, following the
// teacher's promauto.With(registry) wiring pattern so multiple arenas in
// one process don't collide on metric registration.
type Metrics struct {
	usedBytes       prometheus.Gauge
	poolSizeBytes   prometheus.Gauge
	fragmentation   prometheus.Gauge
	allocationsTot  prometheus.Counter
	deallocationsTot prometheus.Counter
}

// NewMetrics registers arena gauges/counters under reg, labeled by name so
// multiple arenas (e.g. one per CSV worker) can share a registry.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		usedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bbpipeline_pool_used_bytes",
			Help:        "Bytes currently allocated from the pool.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
		poolSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bbpipeline_pool_size_bytes",
			Help:        "Aggregate chunk capacity of the pool.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
		fragmentation: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "bbpipeline_pool_fragmentation_ratio",
			Help:        "Fragmentation ratio: (free_blocks - 1) / free_blocks, or 0 with at most one free block.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
		allocationsTot: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_pool_allocations_total",
			Help:        "Total allocate() calls that succeeded.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
		deallocationsTot: factory.NewCounter(prometheus.CounterOpts{
			Name:        "bbpipeline_pool_deallocations_total",
			Help:        "Total deallocate() calls.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
	}
}

// Observe copies a Stats snapshot into the registered gauges. The two
// counters are not touched here; they advance only through
// RecordAllocation and RecordDeallocation.
func (m *Metrics) Observe(s Stats) {
	if m == nil {
		return
	}
	m.usedBytes.Set(float64(s.CurrentUsedBytes))
	m.poolSizeBytes.Set(float64(s.PoolSize))
	m.fragmentation.Set(s.FragmentationRatio)
}

// RecordAllocation increments the allocation counter; called by Arena when
// m is attached via Arena.AttachMetrics.
func (m *Metrics) RecordAllocation() {
	if m == nil {
		return
	}
	m.allocationsTot.Inc()
}

// RecordDeallocation increments the deallocation counter.
func (m *Metrics) RecordDeallocation() {
	if m == nil {
		return
	}
	m.deallocationsTot.Inc()
}
