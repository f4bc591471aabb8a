package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

const (
	dataTypePrivacySettings  = "privacy_settings"
	dataTypeSecuritySettings = "security_settings"
)

// SettingsService owns the one-per-user privacy and security rows.
type SettingsService struct {
	privacy   port.PrivacySettingsRepository
	security  port.SecuritySettingsRepository
	analytics port.AnalyticsRepository
	audit     *AuditService
	tx        port.Transactor
	logger    *zap.Logger
	now       func() time.Time
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(privacy port.PrivacySettingsRepository, security port.SecuritySettingsRepository, audit *AuditService, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{
		privacy:  privacy,
		security: security,
		audit:    audit,
		logger:   logger,
		now:      utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SettingsService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes an update atomic with its audit and data-access records.
func (s *SettingsService) WithTransactor(tx port.Transactor) *SettingsService {
	s.tx = tx
	return s
}

// WithAnalytics counts privacy changes on the per-user aggregate.
func (s *SettingsService) WithAnalytics(repo port.AnalyticsRepository) *SettingsService {
	s.analytics = repo
	return s
}

// GetPrivacySettings returns the user's privacy row, creating the defaults on first access.
func (s *SettingsService) GetPrivacySettings(ctx context.Context, userID string, rc domain.RequestContext) (*domain.PrivacySettings, error) {
	settings, err := s.privacy.GetOrCreate(ctx, domain.DefaultPrivacySettings(userID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("load privacy settings: %w", err)
	}
	if err := s.audit.access(ctx, userID, dataTypePrivacySettings, domain.AccessRead, "settings_view", rc); err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdatePrivacySettings applies patch and records the diff as one audit event.
func (s *SettingsService) UpdatePrivacySettings(ctx context.Context, userID string, patch domain.PrivacyPatch, rc domain.RequestContext) (*domain.PrivacySettings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var result domain.PrivacySettings
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()
		settings, err := s.privacy.GetOrCreate(ctx, domain.DefaultPrivacySettings(userID, now))
		if err != nil {
			return fmt.Errorf("load privacy settings: %w", err)
		}

		changes := patch.Apply(settings, now)
		if err := settings.CheckConsentInvariant(); err != nil {
			return err
		}
		result = *settings
		if len(changes) == 0 {
			return nil
		}

		if err := s.privacy.Update(ctx, *settings); err != nil {
			return fmt.Errorf("update privacy settings: %w", err)
		}
		if err := s.audit.emit(ctx, &userID, domain.EventPrivacySettingChange, domain.SeverityInfo, "privacy settings updated", rc,
			map[string]any{"changes": changes}); err != nil {
			return err
		}
		if err := s.audit.access(ctx, userID, dataTypePrivacySettings, domain.AccessUpdate, "settings_update", rc); err != nil {
			return err
		}
		if s.analytics != nil {
			if err := s.analytics.Increment(ctx, userID, domain.AnalyticsDelta{PrivacyChanges: 1}); err != nil {
				return fmt.Errorf("increment analytics: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSecuritySettings returns the user's security row, creating the defaults on first access.
func (s *SettingsService) GetSecuritySettings(ctx context.Context, userID string, rc domain.RequestContext) (*domain.SecuritySettings, error) {
	settings, err := s.security.GetOrCreate(ctx, domain.DefaultSecuritySettings(userID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("load security settings: %w", err)
	}
	if err := s.audit.access(ctx, userID, dataTypeSecuritySettings, domain.AccessRead, "settings_view", rc); err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateSecuritySettings applies patch; numeric ranges are clamped rather than rejected.
func (s *SettingsService) UpdateSecuritySettings(ctx context.Context, userID string, patch domain.SecurityPatch, rc domain.RequestContext) (*domain.SecuritySettings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var result domain.SecuritySettings
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		now := s.now()
		settings, err := s.security.GetForUpdate(ctx, domain.DefaultSecuritySettings(userID, now))
		if err != nil {
			return fmt.Errorf("lock security settings: %w", err)
		}

		changes := patch.Apply(settings, now)
		result = *settings
		if len(changes) == 0 {
			return nil
		}

		if err := s.security.Update(ctx, *settings); err != nil {
			return fmt.Errorf("update security settings: %w", err)
		}
		if err := s.audit.emit(ctx, &userID, domain.EventPrivacySettingChange, domain.SeverityInfo, "security settings updated", rc,
			map[string]any{"scope": "security", "changes": changes}); err != nil {
			return err
		}
		return s.audit.access(ctx, userID, dataTypeSecuritySettings, domain.AccessUpdate, "settings_update", rc)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
