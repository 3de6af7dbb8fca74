package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory  Backend = "memory"
	BackendRedis   Backend = "redis"
	BackendLevelDB Backend = "leveldb"
	BackendSQLite  Backend = "sqlite"
)

// DefaultMemoryMaxBytes bounds the in-process store when no quota is configured.
const DefaultMemoryMaxBytes = 64 << 20

// DefaultOpTimeout bounds a single store operation.
const DefaultOpTimeout = 2 * time.Second

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendMemory, nil
	case BackendMemory, BackendRedis, BackendLevelDB, BackendSQLite:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL is the redis key expiry. Zero keeps entries until invalidated.
	TTL time.Duration
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend        Backend
	MemoryMaxBytes int64
	Redis          RedisOptions
	LevelDBPath    string
	SQLitePath     string

	// OpTimeout bounds each store call. Zero uses DefaultOpTimeout, a negative
	// value disables the bound.
	OpTimeout time.Duration

	// Connect controls startup connection retries for redis.
	Connect RetryConfig
}

// BackendOf reports the backend serving a store returned by Open.
func BackendOf(s Store) Backend {
	if b, ok := s.(interface{ Backend() Backend }); ok {
		return b.Backend()
	}
	return ""
}

// RedisClient returns the client behind a redis-backed store, so other
// components can share the connection pool. ok is false for other backends,
// including a redis configuration that fell back to memory.
func RedisClient(s Store) (client *redis.Client, ok bool) {
	for s != nil {
		if rs, isRedis := s.(*RedisStore); isRedis {
			return rs.Client(), true
		}
		u, wrapped := s.(interface{ Unwrap() Store })
		if !wrapped {
			break
		}
		s = u.Unwrap()
	}
	return nil, false
}

// Open constructs the configured store. When the backend cannot be brought
// up it logs a warning and returns an in-process store instead; only an
// unknown backend name is an error.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}

	timeout := opts.OpTimeout
	if timeout == 0 {
		timeout = DefaultOpTimeout
	}

	store, err := openBackend(ctx, backend, opts, logger)
	if err != nil {
		Fallbacks.WithLabelValues(string(backend)).Inc()
		logger.Warn().
			Err(err).
			Str("backend", string(backend)).
			Msg("Cache backend unavailable, falling back to in-process store")
		return Instrument(newMemory(opts), BackendMemory, timeout), nil
	}

	logger.Info().Str("backend", string(backend)).Msg("Cache backend initialized")
	return Instrument(store, backend, timeout), nil
}

func openBackend(ctx context.Context, backend Backend, opts Options, logger zerolog.Logger) (Store, error) {
	switch backend {
	case BackendMemory:
		return newMemory(opts), nil
	case BackendRedis:
		return openRedis(ctx, opts, logger)
	case BackendLevelDB:
		return NewLevelDBStore(opts.LevelDBPath, logger)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func newMemory(opts Options) *MemoryStore {
	maxBytes := opts.MemoryMaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultMemoryMaxBytes
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	return NewMemoryStore(maxBytes)
}

func openRedis(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	if opts.Redis.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Redis.Addr,
		Password: opts.Redis.Password,
		DB:       opts.Redis.DB,
	})

	connect := opts.Connect
	if connect.MaxAttempts == 0 {
		connect = DefaultRetryConfig()
	}
	err := retryWithBackoff(ctx, BackendRedis, connect, logger, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStore(client, opts.Redis.Prefix, opts.Redis.TTL, logger), nil
}
