package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, maxAttempts int, window time.Duration) (AttemptLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewAttemptLimiter(rdb, maxAttempts, window), mr
}

func TestRedisAttemptLimiter_Budget(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 3, 30*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Check(ctx, "u1"))
		require.NoError(t, limiter.Fail(ctx, "u1"))
	}
	assert.ErrorIs(t, limiter.Check(ctx, "u1"), ErrTooManyAttempts)
	assert.NoError(t, limiter.Check(ctx, "u2"), "budgets are per user")

	ttl := mr.TTL(pinAttemptKey("u1"))
	assert.Equal(t, 30*time.Minute, ttl)

	mr.FastForward(31 * time.Minute)
	assert.NoError(t, limiter.Check(ctx, "u1"), "budget resets after the window")
}

func TestRedisAttemptLimiter_FailKeepsWindowStart(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 5, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.Fail(ctx, "u1"))
	assert.Equal(t, 30*time.Minute, mr.TTL(pinAttemptKey("u1")))

	mr.FastForward(10 * time.Minute)
	require.NoError(t, limiter.Fail(ctx, "u1"))

	count, err := mr.Get(pinAttemptKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "2", count)
	assert.Equal(t, 20*time.Minute, mr.TTL(pinAttemptKey("u1")), "later failures must not extend the window")
}

func TestRedisAttemptLimiter_Reset(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, limiter.Fail(ctx, "u1"))
	assert.ErrorIs(t, limiter.Check(ctx, "u1"), ErrTooManyAttempts)

	require.NoError(t, limiter.Reset(ctx, "u1"))
	assert.False(t, mr.Exists(pinAttemptKey("u1")))
	assert.NoError(t, limiter.Check(ctx, "u1"))
}

func TestRedisAttemptLimiter_Unavailable(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	err := limiter.Check(context.Background(), "u1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooManyAttempts)
}

func TestMemoryAttemptLimiter_Window(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newMemoryAttemptLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limiter.Fail(ctx, "u1")
	limiter.Fail(ctx, "u1")
	assert.ErrorIs(t, limiter.Check(ctx, "u1"), ErrTooManyAttempts)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, limiter.Check(ctx, "u1"))
}

func TestMemoryAttemptLimiter_PrunesEndedWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newMemoryAttemptLimiter(5, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, limiter.Fail(ctx, "u1"))
	require.NoError(t, limiter.Fail(ctx, "u2"))
	assert.Len(t, limiter.entries, 2)

	now = now.Add(2 * time.Minute)
	require.NoError(t, limiter.Fail(ctx, "u3"))
	assert.Len(t, limiter.entries, 1)
	assert.Contains(t, limiter.entries, "u3")
}

func TestNewAttemptLimiter_NilRedisFallsBack(t *testing.T) {
	limiter := NewAttemptLimiter(nil, 5, time.Minute)
	_, ok := limiter.(*memoryAttemptLimiter)
	assert.True(t, ok, "expected in-process limiter without redis")
}
