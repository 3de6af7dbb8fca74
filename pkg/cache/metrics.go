package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_cache_hits_total",
			Help: "Total number of response cache store hits",
		},
		[]string{"backend"}, // "memory", "redis", "leveldb", "sqlite"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_cache_misses_total",
			Help: "Total number of response cache store misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put", "invalidate", "invalidate_all"
	)

	// MemoryBytes tracks the footprint of the in-process store
	MemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webutil_cache_memory_bytes",
			Help: "Current size of the in-process cache in bytes",
		},
	)

	// Fallbacks tracks backends replaced by the in-process store at startup
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_cache_fallbacks_total",
			Help: "Total number of cache backends that failed to initialize",
		},
		[]string{"backend"},
	)

	// ConnectRetries tracks connection retries for remote backends
	ConnectRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_cache_connect_retries_total",
			Help: "Total number of backend connection retries",
		},
		[]string{"backend"},
	)
)
