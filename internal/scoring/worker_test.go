package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/queue"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, *queue.CacheClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, queue.NewCacheClientFromRedis(client)
}

func TestWorker_RunOnceTakesAndReleasesLock(t *testing.T) {
	mr, locker := newTestLocker(t)
	s := newMemStore()
	seedWithdrawals(s, 3)

	w := NewWorker("test", newTestOrchestrator(s, nil, configs.ScreeningConfig{}), locker, configs.ScreeningConfig{}, time.Minute)

	assert.True(t, w.RunOnce(context.Background()))
	assert.False(t, mr.Exists(batchLockKey), "lock is released after the batch")

	m := w.GetMetrics()
	assert.Equal(t, int64(1), m.Runs)
	assert.Equal(t, int64(3), m.ProcessedCount)
	assert.Equal(t, int64(6), m.FlaggedCount)
	assert.False(t, m.LastRunAt.IsZero())
}

func TestWorker_RunOnceSkipsWhenLockHeld(t *testing.T) {
	_, locker := newTestLocker(t)
	s := newMemStore()
	seedWithdrawals(s, 3)

	_, ok, err := locker.AcquireLock(context.Background(), batchLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := NewWorker("test", newTestOrchestrator(s, nil, configs.ScreeningConfig{}), locker, configs.ScreeningConfig{}, time.Minute)

	assert.False(t, w.RunOnce(context.Background()))
	assert.Empty(t, s.flagSet())
	assert.Equal(t, int64(1), w.GetMetrics().SkippedRuns)
}

func TestWorker_StartRunsImmediatelyAndStops(t *testing.T) {
	s := newMemStore()
	seedWithdrawals(s, 2)

	w := NewWorker("test", newTestOrchestrator(s, nil, configs.ScreeningConfig{}), nil, configs.ScreeningConfig{Interval: time.Hour}, 0)
	w.Start(context.Background())

	require.Eventually(t, func() bool {
		return w.GetMetrics().Runs == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Len(t, s.flagSet(), 4)
}
