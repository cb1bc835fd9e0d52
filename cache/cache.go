// Package cache is a Redis-backed cache with graceful degradation:
// when Redis is unconfigured or unreachable, reads are misses and
// writes report false, and callers proceed as if uncached.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb     *redis.Client
	enabled bool
}

// New connects to Redis at url. An empty url or a failed initial ping
// yields a disabled cache rather than an error.
func New(ctx context.Context, url string) *Cache {
	if url == "" {
		slog.Info("cache disabled", "reason", "no_redis_url_configured")
		return &Cache{}
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("cache disabled", "reason", "bad_redis_url", "error", err)
		return &Cache{}
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("cache initialization failed", "error", err)
		_ = rdb.Close()
		return &Cache{}
	}

	slog.Info("cache enabled")
	return &Cache{rdb: rdb, enabled: true}
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the value and true on a hit. Disabled cache and Redis
// errors both read as misses.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	value, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Error("cache get error", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Error("cache set error", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		slog.Error("cache delete error", "key", key, "error", err)
		return false
	}
	return true
}

// InvalidatePattern deletes every key matching a glob pattern, e.g.
// "auth:permission:org-1:user-1:*". Uses SCAN so large keyspaces do
// not block Redis.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) bool {
	if !c.enabled {
		return false
	}

	var deleted int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Error("cache invalidate error", "pattern", pattern, "error", err)
			return false
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		slog.Error("cache invalidate scan error", "pattern", pattern, "error", err)
		return false
	}
	if deleted > 0 {
		slog.Info("cache pattern invalidated", "pattern", pattern, "count", deleted)
	}
	return true
}

func (c *Cache) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
