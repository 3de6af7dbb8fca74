package resetclock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisPrefix namespaces the clock keys.
const DefaultRedisPrefix = "webutil:reset:"

// Redis keys, relative to the prefix.
const (
	// keyClaim exists while the current interval is running. Its expiry
	// marks the moment the next reset becomes due.
	keyClaim = "claim"

	// keyLast holds the last reset instant in unix nanoseconds.
	keyLast = "last"
)

// Redis is a Clock shared by every instance using the same redis database
// and prefix. At most one caller per interval observes Due == true.
type Redis struct {
	redis    *redis.Client
	prefix   string
	interval time.Duration
	logger   zerolog.Logger
}

// NewRedis creates a shared clock. When no interval is running yet, one is
// started at now so a fresh deployment does not flush immediately.
func NewRedis(ctx context.Context, redisClient *redis.Client, prefix string, interval time.Duration, now time.Time, logger zerolog.Logger) (*Redis, error) {
	if redisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	c := &Redis{
		redis:    redisClient,
		prefix:   prefix,
		interval: interval,
		logger:   logger,
	}
	if interval <= 0 {
		return c, nil
	}

	started, err := c.redis.SetNX(ctx, c.prefix+keyClaim, now.UnixNano(), interval).Result()
	if err != nil {
		return nil, fmt.Errorf("start reset interval: %w", err)
	}
	if started {
		if err := c.redis.SetNX(ctx, c.prefix+keyLast, now.UnixNano(), 0).Err(); err != nil {
			return nil, fmt.Errorf("store last reset: %w", err)
		}
	}
	return c, nil
}

// Due implements Clock. The claim key is created with SET NX and an expiry of
// one interval, so only the first caller after expiry wins.
func (c *Redis) Due(ctx context.Context, now time.Time) (bool, error) {
	if c.interval <= 0 {
		return false, nil
	}
	claimed, err := c.redis.SetNX(ctx, c.prefix+keyClaim, now.UnixNano(), c.interval).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim reset: %w", err)
	}
	if !claimed {
		return false, nil
	}
	if err := c.redis.Set(ctx, c.prefix+keyLast, now.UnixNano(), 0).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record reset time")
	}

	resetsTotal.WithLabelValues("redis", "interval").Inc()
	c.logger.Info().Dur("interval", c.interval).Msg("Periodic cache reset claimed")
	return true, nil
}

// Reset implements Clock.
func (c *Redis) Reset(ctx context.Context, now time.Time) error {
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, c.prefix+keyLast, now.UnixNano(), 0)
	if c.interval > 0 {
		pipe.Set(ctx, c.prefix+keyClaim, now.UnixNano(), c.interval)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store reset in redis: %w", err)
	}
	resetsTotal.WithLabelValues("redis", "explicit").Inc()
	return nil
}

// Last implements Clock. A clock that never reset reports the zero time.
func (c *Redis) Last(ctx context.Context) (time.Time, error) {
	n, err := c.redis.Get(ctx, c.prefix+keyLast).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("get last reset: %w", err)
	}
	return time.Unix(0, n).UTC(), nil
}
