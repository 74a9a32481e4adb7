package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrRateLimitExceeded is matched by every *ExceededError
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError reports a rejected operation and when the window resets
type ExceededError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d operations per window, retry after %s", e.Limit, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimitExceeded) true
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// INCR and set the window expiry on first hit, atomically
const incrScript = `
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`

// Limiter is a fixed-window per-user operation counter in Redis
type Limiter struct {
	rdb    *redis.Client
	script *redis.Script
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLimiter creates a limiter allowing limit operations per window
func NewLimiter(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		rdb:    rdb,
		script: redis.NewScript(incrScript),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// CheckOperationsRateLimit counts one mutation for userID and rejects it
// with *ExceededError once the window's budget is spent
func (l *Limiter) CheckOperationsRateLimit(ctx context.Context, userID int) error {
	now := l.now()
	windowMs := l.window.Milliseconds()
	index := now.UnixMilli() / windowMs
	key := fmt.Sprintf("ratelimit:ops:%d:%d", userID, index)

	count, err := l.script.Run(ctx, l.rdb, []string{key}, windowMs).Int()
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count > l.limit {
		resetAt := time.UnixMilli((index + 1) * windowMs)
		return &ExceededError{Limit: l.limit, RetryAfter: resetAt.Sub(now)}
	}
	return nil
}

// Noop never limits; used when rate limiting is disabled
type Noop struct{}

// CheckOperationsRateLimit always succeeds
func (Noop) CheckOperationsRateLimit(context.Context, int) error {
	return nil
}
