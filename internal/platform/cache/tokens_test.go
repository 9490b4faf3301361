package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TokenCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenCache(client, 30*time.Minute), mr
}

func TestTokenCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, 1, 10)
	require.ErrorIs(t, err, ErrTokenMiss)

	err = cache.Put(ctx, 1, 10, "tok-abc", time.Now().Add(time.Hour))
	require.NoError(t, err)

	got, err := cache.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, "tok-abc", got)

	require.NoError(t, cache.Invalidate(ctx, 1, 10))
	_, err = cache.Get(ctx, 1, 10)
	require.ErrorIs(t, err, ErrTokenMiss)
}

func TestTokenCacheTTLCappedByExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	err := cache.Put(ctx, 1, 10, "tok-short", time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	mr.FastForward(3 * time.Minute)
	_, err = cache.Get(ctx, 1, 10)
	require.ErrorIs(t, err, ErrTokenMiss)
}

func TestTokenCacheSkipsExpiredToken(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	err := cache.Put(ctx, 1, 10, "tok-dead", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = cache.Get(ctx, 1, 10)
	require.ErrorIs(t, err, ErrTokenMiss)
}
