//go:build integration

package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its endpoint and a client
func setupRedis(t *testing.T) (string, *redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return endpoint, client, cleanup
}

func TestRedisStore_Integration(t *testing.T) {
	_, client, cleanup := setupRedis(t)
	defer cleanup()

	runStoreSuite(t, func(t *testing.T) Store {
		_ = client.FlushDB(context.Background()).Err()
		return NewRedisStore(client, "it:", 0, zerolog.Nop())
	})
}

func TestRedisStore_Integration_InvalidateAllKeepsForeignKeys(t *testing.T) {
	_, client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.Set(ctx, "other:key", "keep", 0).Err(); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}
	s := NewRedisStore(client, "it:", 0, zerolog.Nop())
	for i := 0; i < 1200; i++ {
		key := fmt.Sprintf("/js/m%d.js", i)
		if err := s.Put(ctx, key, newTestEntry(t, key, "x")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	if err := s.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() error = %v", err)
	}
	n, err := client.Exists(ctx, "other:key").Result()
	if err != nil || n != 1 {
		t.Errorf("foreign key removed: exists=%d err=%v", n, err)
	}
	keys, _ := client.Keys(ctx, "it:*").Result()
	if len(keys) != 0 {
		t.Errorf("%d prefixed keys survived flush", len(keys))
	}
}

func TestRedisStore_Integration_TTLAndCorruption(t *testing.T) {
	_, client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	s := NewRedisStore(client, "it:", time.Minute, zerolog.Nop())
	_ = s.Put(ctx, "/a.js", newTestEntry(t, "/a.js", "a"))
	ttl, err := client.TTL(ctx, "it:/a.js").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, err = %v, want (0, 1m]", ttl, err)
	}

	_ = client.Set(ctx, "it:/bad.js", "{not json", 0).Err()
	if _, err := s.Get(ctx, "/bad.js"); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get(corrupt) error = %v, want ErrInvalidEntry", err)
	}
	if n, _ := client.Exists(ctx, "it:/bad.js").Result(); n != 0 {
		t.Error("corrupt value should be deleted")
	}
}

func TestOpen_Integration_Redis(t *testing.T) {
	endpoint, _, cleanup := setupRedis(t)
	defer cleanup()

	s, err := Open(context.Background(), Options{
		Backend: BackendRedis,
		Redis:   RedisOptions{Addr: endpoint, Prefix: "open:"},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if got := BackendOf(s); got != BackendRedis {
		t.Errorf("BackendOf() = %q, want redis", got)
	}
	if err := Ping(context.Background(), s); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if _, ok := RedisClient(s); !ok {
		t.Error("RedisClient() ok = false for an instrumented redis store")
	}
}
