// cache.go implements a read-through cache: a (table, id)-keyed TTL'd
// layer over the structured store, invalidated on write, best-effort and
// disabled by configuration flag. Backed by redis/go-redis.
package structured

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis client with the store's TTL and enable/disable policy.
// Expired entries are evicted lazily by Redis itself on read (native TTL
// semantics); concurrent access is race-free because redis-go serializes
// requests over its own connection pool.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
	log     logr.Logger
}

// NewCache builds a Cache. Pass enabled=false to make every Get a miss and
// every Set/Invalidate a no-op, ENABLE_CACHING flag.
func NewCache(client *redis.Client, ttl time.Duration, enabled bool, log logr.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, enabled: enabled, log: log}
}

func cacheKey(table, id string) string {
	return fmt.Sprintf("clarity:%s:%s", table, id)
}

// Get returns (value, true) on a cache hit. Any Redis-level error is treated
// as a miss — the cache is explicitly best-effort, with no strong
// consistency guaranteed across processes.
func (c *Cache) Get(ctx context.Context, table, id string) (string, bool) {
	if !c.enabled || c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, cacheKey(table, id)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.V(1).Info("cache get failed, treating as miss", "table", table, "id", id, "error", err.Error())
		}
		return "", false
	}
	return val, true
}

// Set writes value for (table, id) with the configured TTL.
func (c *Cache) Set(ctx context.Context, table, id, value string) {
	if !c.enabled || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(table, id), value, c.ttl).Err(); err != nil {
		c.log.V(1).Info("cache set failed, continuing without caching this entry", "table", table, "id", id, "error", err.Error())
	}
}

// Invalidate removes a cached entry; every write path calls this for the
// keys it touches so a write always invalidates the corresponding key.
func (c *Cache) Invalidate(ctx context.Context, table, id string) {
	if !c.enabled || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(table, id)).Err(); err != nil {
		c.log.V(1).Info("cache invalidate failed", "table", table, "id", id, "error", err.Error())
	}
}
