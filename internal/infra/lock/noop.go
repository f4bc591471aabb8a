package lock

import (
	"context"
	"time"
)

// NoOpLocker always grants the lock. Tests and one-shot commands use it.
type NoOpLocker struct{}

// NewNoOpLocker creates a no-op locker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

func (NoOpLocker) Acquire(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	return true, ctx.Err()
}

func (NoOpLocker) AcquireWithRetry(ctx context.Context, _ string, _ time.Duration, _ int, _ time.Duration) (bool, error) {
	return true, ctx.Err()
}

func (NoOpLocker) Release(ctx context.Context, _ string) (bool, error) {
	return true, ctx.Err()
}

func (NoOpLocker) Extend(ctx context.Context, _ string, _ time.Duration) (bool, error) {
	return true, ctx.Err()
}

func (NoOpLocker) IsHeld(ctx context.Context, _ string) (bool, error) {
	return false, ctx.Err()
}

var _ Locker = NoOpLocker{}
