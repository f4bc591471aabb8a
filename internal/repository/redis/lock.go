package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// Release and extend only touch keys whose value is still our owner token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// LockRepository implements port.DistributedLock with SET NX and owner tokens.
type LockRepository struct {
	client redis.Cmdable
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewLockRepository constructs a lock store. Keys are namespaced with prefix.
func NewLockRepository(client redis.Cmdable, prefix string) *LockRepository {
	return &LockRepository{
		client: client,
		prefix: prefix,
		tokens: make(map[string]string),
	}
}

// Acquire stores a fresh owner token under key when the key is free.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

// AcquireWithRetry retries Acquire up to maxRetries times.
func (r *LockRepository) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquired, err := r.Acquire(ctx, key, ttl)
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

// Release deletes the key if this process still owns it.
func (r *LockRepository) Release(ctx context.Context, key string) (bool, error) {
	token, ok := r.token(key)
	if !ok {
		return false, nil
	}
	n, err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("redis release lock: %w", err)
	}

	r.mu.Lock()
	delete(r.tokens, key)
	r.mu.Unlock()
	return n == 1, nil
}

// Extend pushes the expiry of an owned lock out to ttl from now.
func (r *LockRepository) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, ok := r.token(key)
	if !ok {
		return false, nil
	}
	n, err := extendScript.Run(ctx, r.client, []string{r.key(key)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis extend lock: %w", err)
	}
	return n == 1, nil
}

// IsHeld reports whether anyone currently holds key.
func (r *LockRepository) IsHeld(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

func (r *LockRepository) token(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[key]
	return token, ok
}

func (r *LockRepository) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

var _ port.DistributedLock = (*LockRepository)(nil)
