package port

import (
	"context"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// PrivacySettingsRepository persists the one-per-user privacy row.
type PrivacySettingsRepository interface {
	// GetOrCreate returns the stored row, inserting defaults when none exists.
	// Concurrent first calls converge on a single row.
	GetOrCreate(ctx context.Context, defaults domain.PrivacySettings) (*domain.PrivacySettings, error)
	Update(ctx context.Context, settings domain.PrivacySettings) error
	RetentionByUser(ctx context.Context) (map[string]int, error)
}

// SecuritySettingsRepository persists the one-per-user security row.
type SecuritySettingsRepository interface {
	GetOrCreate(ctx context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error)
	// GetForUpdate is GetOrCreate plus a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error)
	Update(ctx context.Context, settings domain.SecuritySettings) error
}

// AnalyticsRepository persists the per-user analytics aggregate.
type AnalyticsRepository interface {
	GetOrCreate(ctx context.Context, defaults domain.UserAnalytics) (*domain.UserAnalytics, error)
	Increment(ctx context.Context, userID string, delta domain.AnalyticsDelta) error
}
