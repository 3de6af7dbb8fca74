package merge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MembersTotal tracks processed group members by result.
	MembersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_merge_members_total",
			Help: "Total number of resource group members processed by result",
		},
		[]string{"result"}, // "emitted", "missing", "failed"
	)

	// BytesTotal tracks bytes produced by merges.
	BytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webutil_merge_bytes_total",
			Help: "Total number of bytes written by the merge engine",
		},
	)

	// Duration tracks merge latency.
	Duration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webutil_merge_duration_seconds",
			Help:    "Duration of resource group merges",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// NotModifiedResponses tracks 304 responses by the layer that sent them.
	NotModifiedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webutil_conditional_304_total",
			Help: "Total number of 304 Not Modified responses",
		},
		[]string{"layer"}, // "handler", "respcache"
	)
)
