package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/citycom/internal/config"
)

type testStruct struct {
	Name string
	Age  int
}

func setupTestCache(t *testing.T) *Cache {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(func() { mr.Close() })

	cfg := config.RedisConnection{
		AddressRedis: mr.Addr(),
		Password:     "",
		DB:           0,
		User:         "",
	}

	cache, err := InitServer(context.Background(), cfg)
	require.NoError(t, err)
	return cache
}

func TestSetAndGet(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	expected := testStruct{Name: "Alice", Age: 30}
	err := cache.Set(ctx, "user:1", expected, time.Minute)
	require.NoError(t, err)

	var actual testStruct
	found, err := cache.Get(ctx, "user:1", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetNotFound(t *testing.T) {
	cache := setupTestCache(t)

	var out testStruct
	found, err := cache.Get(context.Background(), "no_such_key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetNX_OnlyFirstWins(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, "latch:PAY1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, "latch:PAY1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysAndInvalidate(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "notice:U1:a", "x", time.Minute))
	require.NoError(t, cache.Set(ctx, "notice:U1:b", "y", time.Minute))
	require.NoError(t, cache.Set(ctx, "notice:U2:c", "z", time.Minute))

	keys, err := cache.Keys(ctx, "notice:U1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, cache.Invalidate(ctx, "notice:U1:a"))
	keys, err = cache.Keys(ctx, "notice:U1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
