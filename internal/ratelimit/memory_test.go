package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(fake, 3, time.Minute, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2-i, decision.Remaining)
		fake.Advance(10 * time.Second)
	}

	decision, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 30*time.Second, decision.RetryAfter)

	other, err := limiter.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	// The first hit leaves the window after a full minute.
	fake.Advance(30 * time.Second)
	decision, err = limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryLimiterSweep(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(fake, 5, time.Minute, 10)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	fake.Advance(45 * time.Second)
	_, err = limiter.Allow(ctx, "b")
	require.NoError(t, err)

	fake.Advance(30 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.size())
}

func TestMemoryLimiterBoundedKeys(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(fake, 1, time.Minute, 2)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		_, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "c")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "untracked keys fail open")
	}
	assert.Equal(t, 2, limiter.size())

	fake.Advance(2 * time.Minute)
	decision, err := limiter.Allow(ctx, "c")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, limiter.size())
}

func TestMemoryLimiterRejectsEmptyKey(t *testing.T) {
	limiter := NewMemoryLimiter(clock.SystemClock{}, 1, time.Minute, 0)
	_, err := limiter.Allow(context.Background(), "")
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "someone-else"))
	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", token))
	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
