package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

const (
	loginRateLimitScope    = "login"
	registerRateLimitScope = "register"
	refreshRateLimitScope  = "refresh"
)

// RateLimitExceededError reports that a caller exhausted its attempts for a scope.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("too many %s attempts, retry in %s", e.Scope, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("too many %s attempts", e.Scope)
}

// Is lets errors.Is(err, domain.ErrRateLimited) match.
func (e *RateLimitExceededError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

// attemptLimiter enforces sliding-window limits on top of a RateLimitStore.
// Store failures are logged and never block the caller.
type attemptLimiter struct {
	store  port.RateLimitStore
	window time.Duration
	logger *zap.Logger
}

func newAttemptLimiter(store port.RateLimitStore, window time.Duration, logger *zap.Logger) *attemptLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &attemptLimiter{store: store, window: window, logger: logger}
}

// allow records an attempt for (scope, key) or returns *RateLimitExceededError.
// A zero limit disables the check.
func (l *attemptLimiter) allow(ctx context.Context, scope, key string, limit int, now time.Time) error {
	if l == nil || l.store == nil || limit <= 0 {
		return nil
	}
	key = normalizeIdentifierKey(key)
	if key == "" {
		return nil
	}
	storageKey := scope + ":" + key

	if err := l.store.TrimWindow(ctx, storageKey, l.window, now); err != nil {
		l.logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := l.store.CountAttempts(ctx, storageKey, l.window, now)
	if err != nil {
		l.logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := l.store.OldestAttempt(ctx, storageKey, l.window, now); err == nil && ok {
			if reset := oldest.Add(l.window); reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			l.logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := l.store.RecordAttempt(ctx, storageKey, now); err != nil {
		l.logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}
	return nil
}

func normalizeIdentifierKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
