package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openidx/samlgate/internal/common/database"
)

// DefaultCacheTTL bounds how stale a cached tenant can get. Admin writes
// invalidate eagerly; the TTL only covers writes that bypass this process.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a Redis read-through cache in front of the tenant store. A nil or
// unreachable Redis degrades to plain store reads.
type Cache struct {
	redis *database.RedisClient
	ttl   time.Duration
}

// NewCache creates a tenant cache with the default TTL
func NewCache(redisClient *database.RedisClient) *Cache {
	return &Cache{redis: redisClient, ttl: DefaultCacheTTL}
}

func cacheKey(id string) string {
	return "samlgate:tenant:" + id
}

// Get returns the cached tenant, or nil on miss or Redis failure
func (c *Cache) Get(ctx context.Context, id string) *Tenant {
	if c == nil || c.redis == nil {
		return nil
	}

	data, err := c.redis.Client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		// redis.Nil on miss; anything else fails open to the store.
		return nil
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil
	}
	return &t
}

// Set stores a tenant for subsequent reads
func (c *Cache) Set(ctx context.Context, t *Tenant) {
	if c == nil || c.redis == nil || t == nil {
		return
	}

	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	c.redis.Client.Set(ctx, cacheKey(t.ID), data, c.ttl)
}

// Invalidate drops a tenant from the cache after a write
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if c == nil || c.redis == nil {
		return
	}
	c.redis.Client.Del(ctx, cacheKey(id))
}
