package respcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outcomes tracks requests by cache outcome
	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_respcache_outcomes_total",
			Help: "Total number of requests handled by the response cache by outcome",
		},
		[]string{"outcome"}, // "FOUND", "NOT_FOUND", "ADDED", "SKIPPED"
	)

	// Invalidations tracks removed entries by reason
	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_respcache_invalidations_total",
			Help: "Total number of cache invalidations by reason",
		},
		[]string{"reason"}, // "expire", "reset", "interval", "stale", "not_modified"
	)

	// CoalescedRequests tracks misses served by another request's execution
	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webutil_respcache_coalesced_total",
			Help: "Total number of cache misses that shared a concurrent downstream execution",
		},
	)
)
