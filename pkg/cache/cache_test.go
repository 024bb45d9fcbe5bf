package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))

	if err := mc.Set(ctx, "a", payload{Name: "x", Count: 3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "a", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "x" || got.Count != 3 {
		t.Fatalf("unexpected value %+v", got)
	}
	if err := mc.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	mc.now = func() time.Time { return now }

	_ = mc.Set(ctx, "short", "v", time.Second)
	now = now.Add(2 * time.Second)
	var s string
	if err := mc.Get(ctx, "short", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired miss, got %v", err)
	}

	_ = mc.Set(ctx, "a", "1", 0)
	_ = mc.Set(ctx, "b", "2", 0)
	_ = mc.Set(ctx, "c", "3", 0)
	if err := mc.Get(ctx, "a", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected least recently used key to be evicted")
	}
	if err := mc.Get(ctx, "c", &s); err != nil || s != "3" {
		t.Fatalf("expected c=3, got %q %v", s, err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	ok, _ := mc.TryLock(ctx, "lock", time.Minute)
	if !ok {
		t.Fatalf("expected first lock to succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); ok {
		t.Fatalf("expected second lock to fail")
	}
	_ = mc.Unlock(ctx, "lock")
	if ok, _ := mc.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("expected lock after unlock")
	}
}

func TestLayeredCachePromotesFromRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)

	_ = remote.Set(ctx, "k", payload{Name: "remote"}, time.Minute)
	var got payload
	if err := lc.Get(ctx, "k", &got); err != nil || got.Name != "remote" {
		t.Fatalf("expected remote hit, got %+v %v", got, err)
	}
	_ = remote.Delete(ctx, "k")
	got = payload{}
	if err := lc.Get(ctx, "k", &got); err != nil || got.Name != "remote" {
		t.Fatalf("expected promoted L1 hit, got %+v %v", got, err)
	}

	if err := lc.Set(ctx, "w", "through", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var s string
	if err := remote.Get(ctx, "w", &s); err != nil || s != "through" {
		t.Fatalf("expected write-through, got %q %v", s, err)
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	if got := GenerateKeyWithParams("forecast", "abc", 12); got != "forecast:abc:12" {
		t.Fatalf("unexpected key %s", got)
	}
}
