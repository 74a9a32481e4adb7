package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidLockKey  = errors.New("invalid lock key")
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// UnlockFunc releases a held lock
type UnlockFunc func(context.Context) error

// Lock is a cross-process mutex
type Lock interface {
	// TryLock acquires key once without waiting; ErrLockNotAcquired when held elsewhere
	TryLock(ctx context.Context, key string, opts ...LockOption) (UnlockFunc, error)
}

type LockOptions struct {
	expiry time.Duration
}

type LockOption func(*LockOptions)

// WithExpiry bounds how long a crashed holder can keep the lock
func WithExpiry(expiry time.Duration) LockOption {
	return func(o *LockOptions) {
		o.expiry = expiry
	}
}
