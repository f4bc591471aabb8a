package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with process-local state.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewMemoryLocker creates an in-memory locker. Expired entries are dropped lazily.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

// WithClock overrides the time source.
func (m *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	if now != nil {
		m.now = now
	}
	return m
}

// Acquire takes key unless a live entry exists.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiresAt, ok := m.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

// AcquireWithRetry retries Acquire up to maxRetries times.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil || acquired {
			return acquired, err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return false, nil
}

// Release frees key.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.locks[key]; !ok {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Extend moves the expiry of a live lock.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expiresAt, ok := m.locks[key]
	if !ok || !now.Before(expiresAt) {
		delete(m.locks, key)
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

// IsHeld reports whether a live entry exists for key.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.locks[key]
	if !ok || !m.now().Before(expiresAt) {
		delete(m.locks, key)
		return false, nil
	}
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
