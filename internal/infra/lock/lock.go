// Package lock keeps background jobs from running on two replicas at once.
// Single-node deployments use the in-memory locker; with Redis configured the
// lock lives in Redis and is shared by every replica of a service.
package lock

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// Locker is the locking contract consumed by the job runner.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)
	Release(ctx context.Context, key string) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsHeld(ctx context.Context, key string) (bool, error)
}

// RedisLocker adapts a port.DistributedLock to Locker.
type RedisLocker struct {
	port.DistributedLock
}

// NewRedisLocker wraps a distributed lock store.
func NewRedisLocker(dl port.DistributedLock) *RedisLocker {
	return &RedisLocker{DistributedLock: dl}
}

var _ Locker = (*RedisLocker)(nil)

// Keys names the locks taken by background jobs.
var Keys = jobKeys{}

type jobKeys struct{}

func (jobKeys) ExportWorker() string { return "lock:job:export" }
func (jobKeys) RetentionSweep() string { return "lock:job:retention" }
func (jobKeys) CounterReconcile() string { return "lock:job:reconcile" }
func (jobKeys) StyleNormalization() string { return "lock:job:style-normalize" }

// Job returns the lock key for an arbitrary named job.
func (jobKeys) Job(name string) string { return "lock:job:" + name }
