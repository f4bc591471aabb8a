package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

const (
	dataTypeProfile   = "profile"
	dataTypeAnalytics = "analytics"

	maxProfileFieldLength = 100
	maxColorPreferences   = 20
)

// UserService owns the profile, the analytics aggregate and account status.
type UserService struct {
	users         port.UserRepository
	security      port.SecuritySettingsRepository
	analytics     port.AnalyticsRepository
	audit         *AuditService
	invalidations port.InvalidationPublisher
	tx            port.Transactor
	logger        *zap.Logger
	now           func() time.Time
}

// NewUserService constructs UserService.
func NewUserService(users port.UserRepository, security port.SecuritySettingsRepository, analytics port.AnalyticsRepository, audit *AuditService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:     users,
		security:  security,
		analytics: analytics,
		audit:     audit,
		logger:    logger,
		now:       utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes profile updates atomic with their data-access record.
func (s *UserService) WithTransactor(tx port.Transactor) *UserService {
	s.tx = tx
	return s
}

// WithInvalidations announces profile changes to sibling caches.
func (s *UserService) WithInvalidations(pub port.InvalidationPublisher) *UserService {
	s.invalidations = pub
	return s
}

// GetProfile returns the user with the password hash stripped.
func (s *UserService) GetProfile(ctx context.Context, userID string, rc domain.RequestContext) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, "user")
	}
	if err := s.audit.access(ctx, userID, dataTypeProfile, domain.AccessRead, "profile_view", rc); err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile applies a partial update of the display attributes.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch, rc domain.RequestContext) (*domain.User, error) {
	if err := validateProfilePatch(patch); err != nil {
		return nil, err
	}

	var updated domain.User
	changed := false
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, "user")
		}
		changed = patch.Apply(user)
		if changed {
			user.UpdatedAt = s.now()
			if err := s.users.UpdateProfile(ctx, *user); err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			if err := s.audit.access(ctx, userID, dataTypeProfile, domain.AccessUpdate, "profile_update", rc); err != nil {
				return err
			}
		}
		updated = *user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		publishInvalidation(ctx, s.invalidations, s.logger, domain.Invalidation{
			UserID:     userID,
			Artifact:   domain.ArtifactProfile,
			Reason:     "profile_updated",
			Source:     config.ServiceIdentity,
			OccurredAt: s.now(),
		})
	}
	updated.PasswordHash = ""
	return &updated, nil
}

func validateProfilePatch(p domain.ProfilePatch) error {
	fields := map[string]*string{
		"first_name":       p.FirstName,
		"last_name":        p.LastName,
		"age_range":        p.AgeRange,
		"style_preference": p.StylePreference,
		"budget_range":     p.BudgetRange,
	}
	for name, v := range fields {
		if v != nil && len(strings.TrimSpace(*v)) > maxProfileFieldLength {
			return domain.Validation(name, "must be at most %d characters", maxProfileFieldLength)
		}
	}
	if p.ColorPreferences != nil && len(*p.ColorPreferences) > maxColorPreferences {
		return domain.Validation("color_preferences", "must list at most %d colors", maxColorPreferences)
	}
	return nil
}

// Analytics returns the per-user aggregate, creating it on first access.
func (s *UserService) Analytics(ctx context.Context, userID string) (*domain.UserAnalytics, error) {
	if s.analytics == nil {
		return nil, fmt.Errorf("analytics repository not configured")
	}
	now := s.now()
	analytics, err := s.analytics.GetOrCreate(ctx, domain.UserAnalytics{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}
	return analytics, nil
}

// Status reports whether an account is active and unlocked, for sibling services.
func (s *UserService) Status(ctx context.Context, userID string) (domain.UserStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.UserStatus{}, notFoundAs(err, "user")
	}
	now := s.now()
	sec, err := s.security.GetOrCreate(ctx, domain.DefaultSecuritySettings(userID, now))
	if err != nil {
		return domain.UserStatus{}, fmt.Errorf("load security settings: %w", err)
	}
	return domain.UserStatus{UserID: user.ID, IsActive: user.IsActive, Locked: sec.IsLocked(now)}, nil
}
