package httpcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Requests/Hits/Misses/Stores as CounterVec series
// labeled by layer, plus unlabeled Evictions, entry-count, hit-ratio and
// memory-footprint series.
type Metrics struct {
	requests  *prometheus.CounterVec
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	stores    *prometheus.CounterVec
	evictions prometheus.Counter
	size      prometheus.Gauge
	hitRatio  prometheus.Gauge
	memBytes  prometheus.Gauge
}

// NewMetrics registers the cache's vectors under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_httpcache_requests_total",
			Help: "Total Get calls by cache layer.",
		}, []string{"layer"}),
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_httpcache_hits_total",
			Help: "Total cache hits by layer.",
		}, []string{"layer"}),
		misses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_httpcache_misses_total",
			Help: "Total cache misses by layer.",
		}, []string{"layer"}),
		stores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bbpipeline_httpcache_stores_total",
			Help: "Total Store calls by layer.",
		}, []string{"layer"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "bbpipeline_httpcache_evictions_total",
			Help: "Total LRU evictions.",
		}),
		size: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbpipeline_httpcache_entries",
			Help: "Current number of cached entries.",
		}),
		hitRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbpipeline_httpcache_hit_ratio",
			Help: "Derived hit ratio (hits / (hits + misses)).",
		}),
		memBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bbpipeline_httpcache_memory_bytes",
			Help: "Estimated memory footprint of cached entries.",
		}),
	}
}

// RecordRequest increments the per-layer request and hit/miss counters.
func (m *Metrics) RecordRequest(layer string, hit bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(layer).Inc()
	if hit {
		m.hits.WithLabelValues(layer).Inc()
	} else {
		m.misses.WithLabelValues(layer).Inc()
	}
}

// RecordStore increments the per-layer store counter.
func (m *Metrics) RecordStore(layer string) {
	if m == nil {
		return
	}
	m.stores.WithLabelValues(layer).Inc()
}

// Observe copies a Stats snapshot into the registered gauges.
func (m *Metrics) Observe(s Stats) {
	if m == nil {
		return
	}
	m.size.Set(float64(s.EntryCount))
	m.hitRatio.Set(s.HitRatio)
	m.memBytes.Set(float64(s.MemoryBytes))
}
