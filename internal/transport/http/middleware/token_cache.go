package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

const (
	maxTokenCacheTTL     = 60 * time.Second
	defaultTokenCacheLen = 10000
)

// TokenCache remembers successful verifications keyed by token hash for at
// most sixty seconds. A token invalidation for a user drops all of that user's
// entries.
type TokenCache struct {
	entries *expirable.LRU[string, domain.TokenVerification]
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewTokenCache builds a cache from the auth cache settings. TTLs above sixty
// seconds are clamped.
func NewTokenCache(cfg config.AuthCacheSettings, metrics *telemetry.Metrics) *TokenCache {
	ttl := cfg.TTL
	if ttl <= 0 || ttl > maxTokenCacheTTL {
		ttl = maxTokenCacheTTL
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultTokenCacheLen
	}
	return &TokenCache{
		entries: expirable.NewLRU[string, domain.TokenVerification](size, nil, ttl),
		metrics: metrics,
		now:     time.Now,
	}
}

// Subscribe registers the cache for invalidation events.
func (tc *TokenCache) Subscribe(sub port.InvalidationSubscriber) {
	if tc != nil && sub != nil {
		sub.SubscribeInvalidations(tc.Invalidate)
	}
}

func (tc *TokenCache) get(token string) (domain.TokenVerification, bool) {
	if tc == nil {
		return domain.TokenVerification{}, false
	}
	key := tokenKey(token)
	v, ok := tc.entries.Get(key)
	if ok && !v.ExpiresAt.IsZero() && !tc.now().Before(v.ExpiresAt) {
		tc.entries.Remove(key)
		ok = false
	}
	tc.metrics.AuthCacheLookup(ok)
	return v, ok
}

func (tc *TokenCache) put(token string, v domain.TokenVerification) {
	if tc == nil {
		return
	}
	tc.entries.Add(tokenKey(token), v)
}

// Invalidate drops every cached verification of the event's user when the
// event concerns tokens.
func (tc *TokenCache) Invalidate(_ context.Context, event domain.Invalidation) {
	if tc == nil || event.Artifact != domain.ArtifactToken || event.UserID == "" {
		return
	}
	dropped := false
	for _, key := range tc.entries.Keys() {
		if v, ok := tc.entries.Peek(key); ok && v.UserID == event.UserID {
			tc.entries.Remove(key)
			dropped = true
		}
	}
	if dropped {
		tc.metrics.Invalidation(string(domain.ArtifactToken), "applied")
	}
}

// Len reports the number of cached verifications.
func (tc *TokenCache) Len() int {
	if tc == nil {
		return 0
	}
	return tc.entries.Len()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
