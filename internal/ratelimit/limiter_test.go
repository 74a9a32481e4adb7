package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiter(client, limit, window), mr
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)
	start := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return start }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckOperationsRateLimit(ctx, 42), "operation %d", i+1)
	}

	err := l.CheckOperationsRateLimit(ctx, 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 3, exceeded.Limit)
	assert.Equal(t, 50*time.Second, exceeded.RetryAfter)

	// other users have their own budget
	assert.NoError(t, l.CheckOperationsRateLimit(ctx, 7))
}

func TestLimiter_WindowRollover(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 59, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.CheckOperationsRateLimit(ctx, 1))
	require.Error(t, l.CheckOperationsRateLimit(ctx, 1))

	now = now.Add(2 * time.Second)
	assert.NoError(t, l.CheckOperationsRateLimit(ctx, 1))
}

func TestLimiter_KeyExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.CheckOperationsRateLimit(context.Background(), 9))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestLimiter_RedisDown(t *testing.T) {
	l, mr := newTestLimiter(t, 5, time.Minute)
	mr.Close()

	err := l.CheckOperationsRateLimit(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimitExceeded))
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.CheckOperationsRateLimit(context.Background(), 1))
}
