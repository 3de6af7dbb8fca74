// Package cache provides the pluggable response store behind the response
// cache middleware.
//
// Four backends implement Store:
//
// - memory: bounded in-process LRU with a byte quota
// - redis: shared remote store, JSON-encoded entries under a key prefix
// - leveldb: local disk store, gob-encoded entries
// - sqlite: local database file, one row per entry
//
// # Basic Usage
//
//	store, err := cache.Open(ctx, cache.Options{
//		Backend: cache.BackendRedis,
//		Redis:   cache.RedisOptions{Addr: "localhost:6379"},
//	}, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - compute and Put
//	}
//
// # Fallback
//
// Open never leaves the caller without a cache. When the configured backend
// cannot be constructed (unreachable redis, unwritable database path) it logs
// a warning and returns the in-process store instead. This happens once, at
// initialization; request-time errors are reported to the caller.
//
// # Metrics
//
// Stores returned by Open are instrumented:
//
//   - webutil_cache_hits_total{backend} - Cache hits
//   - webutil_cache_misses_total{backend} - Cache misses
//   - webutil_cache_errors_total{backend,operation} - Cache operation errors
//   - webutil_cache_memory_bytes - In-process store size
//   - webutil_cache_fallbacks_total{backend} - Backends replaced at startup
//   - webutil_cache_connect_retries_total{backend} - Connection retries
package cache
