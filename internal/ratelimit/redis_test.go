package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisLimiterSlidingWindow(t *testing.T) {
	client := redisClient(t)
	limiter := NewRedisLimiter(client, "test:"+uuid.NewString()+":", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
	decision, err := limiter.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Positive(t, decision.RetryAfter)
}

func TestRedisLocker(t *testing.T) {
	client := redisClient(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	token, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, token))
	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
