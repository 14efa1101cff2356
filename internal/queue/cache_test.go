package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *CacheClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewCacheClientFromRedis(client)
}

func TestCacheClient_SetGet(t *testing.T) {
	_, cache := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Total int `json:"total"`
	}
	require.NoError(t, cache.Set(ctx, "summary", payload{Total: 3}, time.Minute))

	var got payload
	require.NoError(t, cache.Get(ctx, "summary", &got))
	assert.Equal(t, 3, got.Total)

	assert.ErrorIs(t, cache.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestCacheClient_SetExpires(t *testing.T) {
	mr, cache := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", 1, time.Second))
	mr.FastForward(2 * time.Second)

	var v int
	assert.ErrorIs(t, cache.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestCacheClient_LockIsExclusive(t *testing.T) {
	_, cache := setupTestRedis(t)
	ctx := context.Background()

	token, ok, err := cache.AcquireLock(ctx, "lock:screening", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = cache.AcquireLock(ctx, "lock:screening", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.ReleaseLock(ctx, "lock:screening", token))

	_, ok, err = cache.AcquireLock(ctx, "lock:screening", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheClient_ReleaseWithStaleTokenKeepsLock(t *testing.T) {
	mr, cache := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := cache.AcquireLock(ctx, "lock:screening", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.ReleaseLock(ctx, "lock:screening", "someone-else"))
	assert.True(t, mr.Exists("lock:screening"))
}

func TestCacheClient_LockExpires(t *testing.T) {
	mr, cache := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := cache.AcquireLock(ctx, "lock:screening", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = cache.AcquireLock(ctx, "lock:screening", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheClient_PushRecentCapsList(t *testing.T) {
	_, cache := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, cache.PushRecent(ctx, "recent", map[string]int{"n": i}, 3))
	}

	items, err := cache.LRange(ctx, "recent", 0, -1)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.JSONEq(t, `{"n":4}`, items[0])
}
