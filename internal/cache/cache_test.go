package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestPredictionCache_RoundTripAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewPredictionCache(NewRedisKVStore(client), time.Minute, zap.NewNop())
	ctx := context.Background()

	preds := []models.MaintenancePrediction{{
		PredictionID:   5,
		DeviceID:       "printer-1",
		FailureType:    models.FailureTonerDepletion,
		Probability:    0.9,
		DaysUntilEvent: 2,
	}}
	require.NoError(t, c.Put(ctx, "printer-1", preds))
	assert.True(t, mr.Exists("maintenance:device:printer-1:predictions"))

	got, err := c.Get(ctx, "printer-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].PredictionID)
	assert.True(t, got[0].RequiresImmediateAttention())

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "printer-1")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestPredictionCache_EmptyListIsAHit(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewPredictionCache(NewRedisKVStore(client), time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "printer-2", nil))
	got, err := c.Get(ctx, "printer-2")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Invalidate(ctx, "printer-2"))
	_, err = c.Get(ctx, "printer-2")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestRetrainLock_Exclusive(t *testing.T) {
	mr, client := newTestRedis(t)
	lock := NewRetrainLock(client, 30*time.Minute)
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "run-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryAcquire(ctx, "run-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放无效
	require.NoError(t, lock.Release(ctx, "run-b"))
	assert.True(t, mr.Exists(retrainLockKey))

	require.NoError(t, lock.Release(ctx, "run-a"))
	assert.False(t, mr.Exists(retrainLockKey))

	ok, err = lock.TryAcquire(ctx, "run-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetrainLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	lock := NewRetrainLock(client, time.Minute)
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = lock.TryAcquire(ctx, "run-b")
	require.NoError(t, err)
	assert.True(t, ok)
}
