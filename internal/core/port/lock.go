package port

import (
	"context"
	"time"
)

// DistributedLock coordinates background jobs across service replicas.
type DistributedLock interface {
	// Acquire takes the lock when nobody holds it. The lock expires after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)
	// Release frees a lock held by this process and reports whether it was held.
	Release(ctx context.Context, key string) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsHeld(ctx context.Context, key string) (bool, error)
}
