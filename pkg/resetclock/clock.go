// Package resetclock decides when the periodic full cache reset is due.
//
// The response cache flushes every entry once a configured interval has
// elapsed since the previous reset. A Local clock tracks that instant per
// process; a Redis clock shares it between instances so one flush happens per
// interval across the fleet rather than one per instance.
package resetclock

import (
	"context"
	"sync"
	"time"
)

// Clock tracks the last reset instant.
type Clock interface {
	// Due reports whether the reset interval has elapsed at now. A true
	// result claims the reset: the clock restarts at now and concurrent
	// callers observe false.
	Due(ctx context.Context, now time.Time) (bool, error)

	// Reset restarts the interval at now, after an explicit reset request.
	Reset(ctx context.Context, now time.Time) error

	// Last returns the instant of the last reset.
	Last(ctx context.Context) (time.Time, error)
}

// Local is an in-process Clock. An interval of zero disables time-based resets.
type Local struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewLocal creates a clock whose first interval starts at start.
func NewLocal(interval time.Duration, start time.Time) *Local {
	return &Local{interval: interval, last: start}
}

// Due implements Clock.
func (c *Local) Due(_ context.Context, now time.Time) (bool, error) {
	if c.interval <= 0 {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.last) <= c.interval {
		return false, nil
	}
	c.last = now
	resetsTotal.WithLabelValues("local", "interval").Inc()
	return true, nil
}

// Reset implements Clock.
func (c *Local) Reset(_ context.Context, now time.Time) error {
	c.mu.Lock()
	c.last = now
	c.mu.Unlock()
	resetsTotal.WithLabelValues("local", "explicit").Inc()
	return nil
}

// Last implements Clock.
func (c *Local) Last(_ context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

// Interval returns the configured reset interval.
func (c *Local) Interval() time.Duration {
	return c.interval
}
