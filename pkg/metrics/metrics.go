// Package metrics exposes the Prometheus metrics of the combiner and the
// response cache. All metrics are defined in their respective packages
// (cache, merge, respcache, resetclock, warmup) and registered via promauto,
// so this package only serves them and documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Store Metrics (pkg/cache):
//   - webutil_cache_hits_total{backend} (Counter): Store hits by backend
//   - webutil_cache_misses_total{backend} (Counter): Store misses by backend
//   - webutil_cache_errors_total{backend, operation} (Counter): Store operation errors
//   - webutil_cache_memory_bytes (Gauge): Size of the in-process store
//   - webutil_cache_fallbacks_total{backend} (Counter): Backends replaced by the in-process store
//   - webutil_cache_connect_retries_total{backend} (Counter): Startup connection retries
//
// Response Cache Metrics (pkg/respcache):
//   - webutil_respcache_outcomes_total{outcome} (Counter): FOUND, NOT_FOUND, ADDED, SKIPPED
//   - webutil_respcache_invalidations_total{reason} (Counter): expire, reset, interval, stale, not_modified
//   - webutil_respcache_coalesced_total (Counter): Misses served by a concurrent execution
//   - webutil_reset_clock_resets_total{clock, reason} (Counter): Full resets by clock
//
// Merge Metrics (pkg/merge):
//   - webutil_merge_members_total{result} (Counter): emitted, missing, failed
//   - webutil_merge_bytes_total (Counter): Bytes produced by merges
//   - webutil_merge_duration_seconds (Histogram): Merge latency
//   - webutil_conditional_304_total{layer} (Counter): 304 responses by layer
//
// Warm-up Metrics (pkg/warmup):
//   - webutil_warmup_requests_total{result} (Counter): Warm-up requests by result
//
// Example Prometheus Queries:
//
//   # Response cache hit rate
//   sum(rate(webutil_respcache_outcomes_total{outcome="FOUND"}[5m])) /
//   sum(rate(webutil_respcache_outcomes_total[5m]))
//
//   # Stale entries detected
//   rate(webutil_respcache_invalidations_total{reason="stale"}[5m])
//
//   # Missing group members
//   rate(webutil_merge_members_total{result="missing"}[5m])
//
//   # P95 merge latency
//   histogram_quantile(0.95, rate(webutil_merge_duration_seconds_bucket[5m]))
