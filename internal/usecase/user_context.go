package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

const (
	maxUserContextTTL      = 5 * time.Minute
	defaultUserContextSize = 5000
)

// UserContextFetcher pulls profile and wardrobe data from sibling services.
// Entries are cached per (service, user, artifact) for at most five minutes,
// concurrent misses for the same key share one upstream call, and
// invalidations drop entries early.
type UserContextFetcher struct {
	service  string
	profiles port.ProfileSource
	wardrobe port.WardrobeSource
	cache    *expirable.LRU[string, any]
	group    singleflight.Group
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewUserContextFetcher builds a fetcher for service. Either source may be nil
// when the service never needs that artifact.
func NewUserContextFetcher(service string, cfg config.UserContextSettings, profiles port.ProfileSource, wardrobe port.WardrobeSource, logger *zap.Logger) *UserContextFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 || ttl > maxUserContextTTL {
		ttl = maxUserContextTTL
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultUserContextSize
	}
	return &UserContextFetcher{
		service:  service,
		profiles: profiles,
		wardrobe: wardrobe,
		cache:    expirable.NewLRU[string, any](size, nil, ttl),
		logger:   logger,
	}
}

// WithMetrics counts applied invalidations.
func (f *UserContextFetcher) WithMetrics(m *telemetry.Metrics) *UserContextFetcher {
	f.metrics = m
	return f
}

// Subscribe registers the fetcher for invalidation events.
func (f *UserContextFetcher) Subscribe(sub port.InvalidationSubscriber) {
	if sub != nil {
		sub.SubscribeInvalidations(f.Invalidate)
	}
}

// FetchProfile returns the user's identity profile.
func (f *UserContextFetcher) FetchProfile(ctx context.Context, userID, token string) (domain.UserProfileSnapshot, error) {
	if f.profiles == nil {
		return domain.UserProfileSnapshot{}, fmt.Errorf("profile source not configured")
	}
	return fetchCached(f, userID, domain.ArtifactProfile, func() (domain.UserProfileSnapshot, error) {
		return f.profiles.FetchProfile(ctx, userID, token)
	})
}

// FetchWardrobe returns the user's wardrobe summaries.
func (f *UserContextFetcher) FetchWardrobe(ctx context.Context, userID, token string) ([]domain.WardrobeSummary, error) {
	if f.wardrobe == nil {
		return nil, fmt.Errorf("wardrobe source not configured")
	}
	return fetchCached(f, userID, domain.ArtifactWardrobe, func() ([]domain.WardrobeSummary, error) {
		return f.wardrobe.FetchWardrobe(ctx, userID, token)
	})
}

// Invalidate drops the cached artifact named by event.
func (f *UserContextFetcher) Invalidate(_ context.Context, event domain.Invalidation) {
	if event.Artifact != domain.ArtifactProfile && event.Artifact != domain.ArtifactWardrobe {
		return
	}
	if f.cache.Remove(f.key(event.UserID, event.Artifact)) {
		f.metrics.Invalidation(string(event.Artifact), "applied")
		f.logger.Debug("user context invalidated",
			zap.String("user_id", event.UserID),
			zap.String("artifact", string(event.Artifact)),
			zap.String("reason", event.Reason),
		)
	}
}

func (f *UserContextFetcher) key(userID string, artifact domain.Artifact) string {
	return f.service + ":" + userID + ":" + string(artifact)
}

func fetchCached[T any](f *UserContextFetcher, userID string, artifact domain.Artifact, load func() (T, error)) (T, error) {
	key := f.key(userID, artifact)
	if cached, ok := f.cache.Get(key); ok {
		if v, ok := cached.(T); ok {
			return v, nil
		}
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		f.cache.Add(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
