package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postfeed_page_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// CacheMisses tracks page cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postfeed_page_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheSize tracks bytes written to the page cache
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "postfeed_page_cache_size_bytes",
			Help: "Bytes written to the page cache since start",
		},
	)

	// CacheInvalidations tracks generation bumps
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postfeed_page_cache_invalidations_total",
			Help: "Total number of page cache invalidations",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postfeed_page_cache_errors_total",
			Help: "Total number of page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "generation", "invalidate"
	)
)
