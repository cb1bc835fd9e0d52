package cache

import (
	"context"
	"testing"
	"time"
)

func TestDisabledCacheDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, "")

	if c.Enabled() {
		t.Fatal("cache with no URL should be disabled")
	}

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get on disabled cache should be a miss")
	}
	if c.Set(ctx, "k", "v", time.Minute) {
		t.Error("Set on disabled cache should return false")
	}
	if c.Delete(ctx, "k") {
		t.Error("Delete on disabled cache should return false")
	}
	if c.InvalidatePattern(ctx, "k:*") {
		t.Error("InvalidatePattern on disabled cache should return false")
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping on disabled cache should be nil, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on disabled cache should be nil, got %v", err)
	}
}

func TestBadURLDisablesCache(t *testing.T) {
	c := New(context.Background(), "not-a-redis-url")
	if c.Enabled() {
		t.Fatal("cache with unparseable URL should be disabled")
	}
}

func TestUnreachableRedisDisablesCache(t *testing.T) {
	// Port 1 is never a Redis server; the initial ping must fail fast
	// and leave the cache disabled instead of erroring.
	c := New(context.Background(), "redis://127.0.0.1:1/0")
	if c.Enabled() {
		t.Fatal("cache pointing at an unreachable server should be disabled")
	}
}
