package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

type redisLock struct {
	rs *redsync.Redsync
}

func defaultLockOptions() *LockOptions {
	return &LockOptions{
		expiry: 8 * time.Second,
	}
}

// NewRedisLock creates a redsync-backed Lock on a single Redis
func NewRedisLock(client *redis.Client) Lock {
	pool := goredis.NewPool(client)
	return &redisLock{rs: redsync.New(pool)}
}

func createUnlock(mutex *redsync.Mutex) UnlockFunc {
	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("failed to unlock")
		}
		return nil
	}
}

func (l *redisLock) TryLock(ctx context.Context, key string, opts ...LockOption) (UnlockFunc, error) {
	if key == "" {
		return nil, ErrInvalidLockKey
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	options := defaultLockOptions()
	for _, opt := range opts {
		opt(options)
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
	)

	err := mutex.LockContext(ctx)
	if err != nil {
		var errTaken *redsync.ErrTaken
		if errors.As(err, &errTaken) || errors.Is(err, redsync.ErrFailed) {
			return nil, ErrLockNotAcquired
		}
		return nil, err
	}

	return createUnlock(mutex), nil
}
