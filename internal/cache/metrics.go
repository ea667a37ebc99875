package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bffgw",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"entity", "backend"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bffgw",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"entity", "backend"},
	)

	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bffgw",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		},
		[]string{"entity", "backend"},
	)

	cacheSizeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bffgw",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current number of entries in the cache",
		},
		[]string{"entity", "backend"},
	)

	batchFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bffgw",
			Subsystem: "cache",
			Name:      "batch_fetches_total",
			Help:      "Total number of downstream batch fetches",
		},
		[]string{"entity", "result"},
	)
)

// RecordHit records a cache hit.
func RecordHit(entity, backend string) {
	cacheHitsTotal.WithLabelValues(entity, backend).Inc()
}

// RecordMiss records a cache miss.
func RecordMiss(entity, backend string) {
	cacheMissesTotal.WithLabelValues(entity, backend).Inc()
}

// RecordEviction records an eviction.
func RecordEviction(entity, backend string) {
	cacheEvictionsTotal.WithLabelValues(entity, backend).Inc()
}

// RecordSize records the current entry count.
func RecordSize(entity, backend string, size int) {
	cacheSizeGauge.WithLabelValues(entity, backend).Set(float64(size))
}

// RecordBatchFetch records one downstream batch fetch outcome.
func RecordBatchFetch(entity, result string) {
	batchFetchesTotal.WithLabelValues(entity, result).Inc()
}
