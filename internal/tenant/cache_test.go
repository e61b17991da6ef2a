package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/openidx/samlgate/internal/common/database"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCache(&database.RedisClient{Client: client}), mr
}

func cachedTenant() *Tenant {
	return &Tenant{
		ID:                 "t-1",
		Name:               "acme",
		Issuer:             "https://sp.example.com",
		IDPSSOTargetURL:    "https://idp.example.com/sso",
		IDPCertFingerprint: "AA:BB:CC",
		NameIDFormat:       DefaultNameIDFormat,
		Enabled:            true,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.Nil(t, cache.Get(ctx, "t-1"), "empty cache must miss")

	cache.Set(ctx, cachedTenant())

	got := cache.Get(ctx, "t-1")
	require.NotNil(t, got)
	require.Equal(t, "acme", got.Name)
	require.Equal(t, "AA:BB:CC", got.IDPCertFingerprint)
	require.True(t, got.Enabled)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, cachedTenant())
	require.NotNil(t, cache.Get(ctx, "t-1"))

	cache.Invalidate(ctx, "t-1")
	require.Nil(t, cache.Get(ctx, "t-1"))
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, cachedTenant())
	require.True(t, mr.Exists("samlgate:tenant:t-1"))

	mr.FastForward(DefaultCacheTTL + time.Second)
	require.Nil(t, cache.Get(ctx, "t-1"))
}

func TestCacheNilRedisFailsOpen(t *testing.T) {
	cache := NewCache(nil)
	ctx := context.Background()

	require.Nil(t, cache.Get(ctx, "t-1"))
	cache.Set(ctx, cachedTenant()) // must not panic
	cache.Invalidate(ctx, "t-1")
}

func TestCacheCorruptEntryMisses(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("samlgate:tenant:t-1", "{not json"))
	require.Nil(t, cache.Get(ctx, "t-1"))
}
