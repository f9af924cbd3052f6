package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenCache(t *testing.T) (*TokenCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenCache(client, time.Minute), mr
}

func TestTokenCacheRoundTrip(t *testing.T) {
	cache, _ := newTestTokenCache(t)
	ctx := context.Background()

	seller := &Seller{ID: 4, BossID: 2, Name: "Rui", Token: "tok-abc", IsActive: true}
	require.NoError(t, cache.Set(ctx, seller))

	got, err := cache.Get(ctx, "tok-abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, seller.ID, got.ID)
	assert.Equal(t, seller.BossID, got.BossID)
}

func TestTokenCacheMissReturnsNil(t *testing.T) {
	cache, _ := newTestTokenCache(t)

	got, err := cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenCacheInvalidate(t *testing.T) {
	cache, _ := newTestTokenCache(t)
	ctx := context.Background()

	seller := &Seller{ID: 4, BossID: 2, Token: "tok-abc", IsActive: true}
	require.NoError(t, cache.Set(ctx, seller))
	require.NoError(t, cache.Invalidate(ctx, "tok-abc"))

	got, err := cache.Get(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenCacheEntryExpires(t *testing.T) {
	cache, mr := newTestTokenCache(t)
	ctx := context.Background()

	seller := &Seller{ID: 4, BossID: 2, Token: "tok-abc", IsActive: true}
	require.NoError(t, cache.Set(ctx, seller))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenCacheNilReceiverIsSafe(t *testing.T) {
	var cache *TokenCache
	ctx := context.Background()

	got, err := cache.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Set(ctx, &Seller{Token: "tok"}))
	assert.NoError(t, cache.Invalidate(ctx, "tok"))
}
