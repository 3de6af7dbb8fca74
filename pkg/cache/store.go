package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrUnknownBackend indicates an unsupported backend name
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Store holds captured responses keyed by request.
//
// Implementations must be safe for concurrent use. No cross-key atomicity is
// required; Put replaces any existing entry under the same key. InvalidateAll
// may race with concurrent Puts, and entries written after the flush began are
// allowed to survive.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under key.
	Put(ctx context.Context, key string, entry *Entry) error

	// Invalidate removes the entry for key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error

	// InvalidateAll removes every entry.
	InvalidateAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks store health. Stores without a remote dependency are always healthy.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
