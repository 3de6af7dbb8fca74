package cache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

var testCaptured = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestEntry(t *testing.T, key, body string) *Entry {
	t.Helper()
	h := http.Header{}
	h.Set("Content-Type", "text/javascript; charset=utf-8")
	h.Add("Vary", "Accept-Encoding")
	h.Add("Vary", "User-Agent")
	e, err := NewEntry(key, http.StatusOK, h, []byte(body), testCaptured)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	e.SourceModified = testCaptured.Add(-time.Hour)
	return e
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("miss on empty store", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "/js/a.js"); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("put then get round trip", func(t *testing.T) {
		s := newStore(t)
		want := newTestEntry(t, "/js/a,b.js", "var a;\nvar b;")
		if err := s.Put(ctx, want.Key, want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, err := s.Get(ctx, want.Key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != want.Status {
			t.Errorf("Status = %d, want %d", got.Status, want.Status)
		}
		if !bytes.Equal(got.Body, want.Body) {
			t.Errorf("Body = %q, want %q", got.Body, want.Body)
		}
		if got.ContentType != want.ContentType {
			t.Errorf("ContentType = %q, want %q", got.ContentType, want.ContentType)
		}
		if vv := got.Header.Values("Vary"); len(vv) != 2 || vv[0] != "Accept-Encoding" || vv[1] != "User-Agent" {
			t.Errorf("Vary = %v, want order preserved", vv)
		}
		if !got.CapturedAt.Equal(want.CapturedAt) {
			t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, want.CapturedAt)
		}
		if !got.ValidAsOf().Equal(want.SourceModified) {
			t.Errorf("ValidAsOf() = %v, want %v", got.ValidAsOf(), want.SourceModified)
		}
	})

	t.Run("put replaces existing entry", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "/k", newTestEntry(t, "/k", "old"))
		_ = s.Put(ctx, "/k", newTestEntry(t, "/k", "new"))

		got, err := s.Get(ctx, "/k")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got.Body) != "new" {
			t.Errorf("Body = %q, want %q", got.Body, "new")
		}
	})

	t.Run("invalidate removes only the key", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(ctx, "/a", newTestEntry(t, "/a", "a"))
		_ = s.Put(ctx, "/b", newTestEntry(t, "/b", "b"))

		if err := s.Invalidate(ctx, "/a"); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		if _, err := s.Get(ctx, "/a"); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get(/a) error = %v, want ErrCacheMiss", err)
		}
		if _, err := s.Get(ctx, "/b"); err != nil {
			t.Errorf("Get(/b) error = %v, want hit", err)
		}
		if err := s.Invalidate(ctx, "/missing"); err != nil {
			t.Errorf("Invalidate(absent) error = %v, want nil", err)
		}
	})

	t.Run("invalidate all empties the store", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"/a", "/b", "/c?x=1"} {
			_ = s.Put(ctx, k, newTestEntry(t, k, k))
		}
		if err := s.InvalidateAll(ctx); err != nil {
			t.Fatalf("InvalidateAll() error = %v", err)
		}
		for _, k := range []string{"/a", "/b", "/c?x=1"} {
			if _, err := s.Get(ctx, k); !errors.Is(err, ErrCacheMiss) {
				t.Errorf("Get(%s) error = %v, want ErrCacheMiss", k, err)
			}
		}
	})

	t.Run("nil entry rejected", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "/nil", nil); err == nil {
			t.Error("Put(nil) should fail")
		}
	})
}
