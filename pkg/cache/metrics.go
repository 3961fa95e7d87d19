package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks metadata cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_cache_hits_total",
			Help: "Total number of metadata cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_cache_misses_total",
			Help: "Total number of metadata cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enricher_cache_size_bytes",
			Help: "Bytes written to the metadata cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "mget", "set", "delete"
	)
)
