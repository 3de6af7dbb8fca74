package cache

import (
	"context"
	"errors"
	"time"
)

// instrumented records hit, miss and error metrics for a backend and bounds
// each operation with a timeout.
type instrumented struct {
	Store
	backend Backend
	timeout time.Duration
}

// Instrument wraps s so its operations are counted under the backend label.
// A positive timeout bounds every call.
func Instrument(s Store, backend Backend, timeout time.Duration) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s, backend: backend, timeout: timeout}
}

func (i *instrumented) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, i.timeout)
}

func (i *instrumented) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	entry, err := i.Store.Get(ctx, key)
	switch {
	case err == nil:
		CacheHits.WithLabelValues(string(i.backend)).Inc()
	case errors.Is(err, ErrCacheMiss):
		CacheMisses.WithLabelValues(string(i.backend)).Inc()
	default:
		CacheErrors.WithLabelValues(string(i.backend), "get").Inc()
	}
	return entry, err
}

func (i *instrumented) Put(ctx context.Context, key string, entry *Entry) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	return i.count("put", i.Store.Put(ctx, key, entry))
}

func (i *instrumented) Invalidate(ctx context.Context, key string) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	return i.count("invalidate", i.Store.Invalidate(ctx, key))
}

func (i *instrumented) InvalidateAll(ctx context.Context) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	return i.count("invalidate_all", i.Store.InvalidateAll(ctx))
}

// Ping forwards to the wrapped store when it supports health checks.
func (i *instrumented) Ping(ctx context.Context) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	return Ping(ctx, i.Store)
}

// Backend reports which backend serves the store.
func (i *instrumented) Backend() Backend {
	return i.backend
}

// Unwrap returns the wrapped store.
func (i *instrumented) Unwrap() Store {
	return i.Store
}

func (i *instrumented) count(operation string, err error) error {
	if err != nil {
		CacheErrors.WithLabelValues(string(i.backend), operation).Inc()
	}
	return err
}
