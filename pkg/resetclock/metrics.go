package resetclock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webutil_reset_clock_resets_total",
	Help: "Total number of cache resets started by the reset clock",
}, []string{"clock", "reason"}) // clock: "local", "redis"; reason: "interval", "explicit"
