package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	privacyTable   = "identity.privacy_settings"
	securityTable  = "identity.security_settings"
	analyticsTable = "identity.user_analytics"
)

var privacyColumns = []string{
	"id",
	"user_id",
	"profile_visibility",
	"wardrobe_visibility",
	"outfit_history_visibility",
	"insights_visibility",
	"allow_analytics_sharing",
	"allow_style_recommendations",
	"allow_social_features",
	"allow_marketing_communications",
	"allow_third_party_integrations",
	"auto_delete_old_data",
	"data_retention_months",
	"security_notifications",
	"privacy_update_notifications",
	"data_processing_notifications",
	"data_processing_consent",
	"consent_date",
	"consent_version",
	"created_at",
	"updated_at",
}

// PrivacySettingsRepository implements port.PrivacySettingsRepository.
type PrivacySettingsRepository struct {
	base
}

// NewPrivacySettingsRepository wires the privacy settings repository.
func NewPrivacySettingsRepository(exec pgExecutor) *PrivacySettingsRepository {
	return &PrivacySettingsRepository{base: newBase(exec)}
}

// GetOrCreate inserts defaults unless a row exists, then returns the stored row.
// The unique index on user_id decides concurrent first accesses; the loser re-reads.
func (r *PrivacySettingsRepository) GetOrCreate(ctx context.Context, defaults domain.PrivacySettings) (*domain.PrivacySettings, error) {
	if defaults.ID == "" {
		defaults.ID = uuid.NewString()
	}
	stmt, args, err := r.builder.Insert(privacyTable).
		Columns(privacyColumns...).
		Values(privacyValues(defaults)...).
		Suffix("ON CONFLICT (user_id) DO NOTHING RETURNING " + joinColumns(privacyColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert privacy settings sql: %w", err)
	}

	created, err := r.queryOne(ctx, stmt, args)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return r.get(ctx, defaults.UserID)
}

func (r *PrivacySettingsRepository) get(ctx context.Context, userID string) (*domain.PrivacySettings, error) {
	stmt, args, err := r.builder.
		Select(privacyColumns...).
		From(privacyTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select privacy settings sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func (r *PrivacySettingsRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.PrivacySettings, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var s domain.PrivacySettings
	err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.ProfileVisibility,
		&s.WardrobeVisibility,
		&s.OutfitHistoryVisibility,
		&s.InsightsVisibility,
		&s.AllowAnalyticsSharing,
		&s.AllowStyleRecommendations,
		&s.AllowSocialFeatures,
		&s.AllowMarketingCommunications,
		&s.AllowThirdPartyIntegrations,
		&s.AutoDeleteOldData,
		&s.DataRetentionMonths,
		&s.SecurityNotifications,
		&s.PrivacyUpdateNotifications,
		&s.DataProcessingNotifications,
		&s.DataProcessingConsent,
		&s.ConsentDate,
		&s.ConsentVersion,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan privacy settings: %w", err)
	}
	return &s, nil
}

// Update persists every mutable privacy field.
func (r *PrivacySettingsRepository) Update(ctx context.Context, s domain.PrivacySettings) error {
	if err := s.CheckConsentInvariant(); err != nil {
		return err
	}
	stmt, args, err := r.builder.Update(privacyTable).
		SetMap(map[string]any{
			"profile_visibility":             s.ProfileVisibility,
			"wardrobe_visibility":            s.WardrobeVisibility,
			"outfit_history_visibility":      s.OutfitHistoryVisibility,
			"insights_visibility":            s.InsightsVisibility,
			"allow_analytics_sharing":        s.AllowAnalyticsSharing,
			"allow_style_recommendations":    s.AllowStyleRecommendations,
			"allow_social_features":          s.AllowSocialFeatures,
			"allow_marketing_communications": s.AllowMarketingCommunications,
			"allow_third_party_integrations": s.AllowThirdPartyIntegrations,
			"auto_delete_old_data":           s.AutoDeleteOldData,
			"data_retention_months":          s.DataRetentionMonths,
			"security_notifications":         s.SecurityNotifications,
			"privacy_update_notifications":   s.PrivacyUpdateNotifications,
			"data_processing_notifications":  s.DataProcessingNotifications,
			"data_processing_consent":        s.DataProcessingConsent,
			"consent_date":                   s.ConsentDate,
			"consent_version":                s.ConsentVersion,
			"updated_at":                     s.UpdatedAt,
		}).
		Where(squirrel.Eq{"user_id": s.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update privacy settings sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update privacy settings")
}

// RetentionByUser returns retention months for every user with settings.
func (r *PrivacySettingsRepository) RetentionByUser(ctx context.Context) (map[string]int, error) {
	stmt, args, err := r.builder.
		Select("user_id", "data_retention_months").
		From(privacyTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select retention sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query retention: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			months int
		)
		if err := rows.Scan(&userID, &months); err != nil {
			return nil, fmt.Errorf("scan retention: %w", err)
		}
		out[userID] = months
	}
	return out, rows.Err()
}

func privacyValues(s domain.PrivacySettings) []any {
	return []any{
		s.ID,
		s.UserID,
		s.ProfileVisibility,
		s.WardrobeVisibility,
		s.OutfitHistoryVisibility,
		s.InsightsVisibility,
		s.AllowAnalyticsSharing,
		s.AllowStyleRecommendations,
		s.AllowSocialFeatures,
		s.AllowMarketingCommunications,
		s.AllowThirdPartyIntegrations,
		s.AutoDeleteOldData,
		s.DataRetentionMonths,
		s.SecurityNotifications,
		s.PrivacyUpdateNotifications,
		s.DataProcessingNotifications,
		s.DataProcessingConsent,
		s.ConsentDate,
		s.ConsentVersion,
		s.CreatedAt,
		s.UpdatedAt,
	}
}

var securityColumns = []string{
	"id",
	"user_id",
	"two_factor_enabled",
	"two_factor_method",
	"session_timeout_minutes",
	"max_concurrent_sessions",
	"logout_inactive_sessions",
	"notify_new_device_login",
	"notify_password_change",
	"notify_privacy_changes",
	"notify_data_export",
	"trusted_devices",
	"last_password_change",
	"failed_login_attempts",
	"account_locked_until",
	"created_at",
	"updated_at",
}

// SecuritySettingsRepository implements port.SecuritySettingsRepository.
type SecuritySettingsRepository struct {
	base
}

// NewSecuritySettingsRepository wires the security settings repository.
func NewSecuritySettingsRepository(exec pgExecutor) *SecuritySettingsRepository {
	return &SecuritySettingsRepository{base: newBase(exec)}
}

// GetOrCreate inserts defaults unless a row exists, then returns the stored row.
func (r *SecuritySettingsRepository) GetOrCreate(ctx context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error) {
	stmt, args, err := r.insertDefaults(defaults, "ON CONFLICT (user_id) DO NOTHING RETURNING "+joinColumns(securityColumns))
	if err != nil {
		return nil, err
	}

	created, err := r.queryOne(ctx, stmt, args)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return r.selectByUser(ctx, defaults.UserID, "")
}

// GetForUpdate creates the row if needed and locks it for the surrounding
// transaction. Read-modify-write of the lockout counter goes through here.
func (r *SecuritySettingsRepository) GetForUpdate(ctx context.Context, defaults domain.SecuritySettings) (*domain.SecuritySettings, error) {
	stmt, args, err := r.insertDefaults(defaults, "ON CONFLICT (user_id) DO NOTHING")
	if err != nil {
		return nil, err
	}
	if _, err := r.execCount(ctx, stmt, args, "ensure security settings"); err != nil {
		return nil, err
	}
	return r.selectByUser(ctx, defaults.UserID, "FOR UPDATE")
}

func (r *SecuritySettingsRepository) insertDefaults(defaults domain.SecuritySettings, suffix string) (string, []any, error) {
	if defaults.ID == "" {
		defaults.ID = uuid.NewString()
	}
	devices, err := json.Marshal(nonNilStrings(defaults.TrustedDevices))
	if err != nil {
		return "", nil, fmt.Errorf("marshal trusted devices: %w", err)
	}
	stmt, args, err := r.builder.Insert(securityTable).
		Columns(securityColumns...).
		Values(
			defaults.ID,
			defaults.UserID,
			defaults.TwoFactorEnabled,
			defaults.TwoFactorMethod,
			defaults.SessionTimeoutMinutes,
			defaults.MaxConcurrentSessions,
			defaults.LogoutInactiveSessions,
			defaults.NotifyNewDeviceLogin,
			defaults.NotifyPasswordChange,
			defaults.NotifyPrivacyChanges,
			defaults.NotifyDataExport,
			devices,
			defaults.LastPasswordChange,
			defaults.FailedLoginAttempts,
			defaults.AccountLockedUntil,
			defaults.CreatedAt,
			defaults.UpdatedAt,
		).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build upsert security settings sql: %w", err)
	}
	return stmt, args, nil
}

func (r *SecuritySettingsRepository) selectByUser(ctx context.Context, userID, suffix string) (*domain.SecuritySettings, error) {
	query := r.builder.
		Select(securityColumns...).
		From(securityTable).
		Where(squirrel.Eq{"user_id": userID})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select security settings sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func (r *SecuritySettingsRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.SecuritySettings, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	s, err := scanSecurity(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan security settings: %w", err)
	}
	return s, nil
}

// Update persists every mutable security field, including lockout state.
func (r *SecuritySettingsRepository) Update(ctx context.Context, s domain.SecuritySettings) error {
	devices, err := json.Marshal(nonNilStrings(s.TrustedDevices))
	if err != nil {
		return fmt.Errorf("marshal trusted devices: %w", err)
	}
	stmt, args, err := r.builder.Update(securityTable).
		SetMap(map[string]any{
			"two_factor_enabled":       s.TwoFactorEnabled,
			"two_factor_method":        s.TwoFactorMethod,
			"session_timeout_minutes":  s.SessionTimeoutMinutes,
			"max_concurrent_sessions":  s.MaxConcurrentSessions,
			"logout_inactive_sessions": s.LogoutInactiveSessions,
			"notify_new_device_login":  s.NotifyNewDeviceLogin,
			"notify_password_change":   s.NotifyPasswordChange,
			"notify_privacy_changes":   s.NotifyPrivacyChanges,
			"notify_data_export":       s.NotifyDataExport,
			"trusted_devices":          devices,
			"last_password_change":     s.LastPasswordChange,
			"failed_login_attempts":    s.FailedLoginAttempts,
			"account_locked_until":     s.AccountLockedUntil,
			"updated_at":               s.UpdatedAt,
		}).
		Where(squirrel.Eq{"user_id": s.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update security settings sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update security settings")
}

func scanSecurity(row pgx.Row) (*domain.SecuritySettings, error) {
	var (
		s       domain.SecuritySettings
		devices []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TwoFactorEnabled,
		&s.TwoFactorMethod,
		&s.SessionTimeoutMinutes,
		&s.MaxConcurrentSessions,
		&s.LogoutInactiveSessions,
		&s.NotifyNewDeviceLogin,
		&s.NotifyPasswordChange,
		&s.NotifyPrivacyChanges,
		&s.NotifyDataExport,
		&devices,
		&s.LastPasswordChange,
		&s.FailedLoginAttempts,
		&s.AccountLockedUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(devices, &s.TrustedDevices); err != nil {
		return nil, fmt.Errorf("decode trusted devices: %w", err)
	}
	return &s, nil
}

var analyticsColumns = []string{
	"id",
	"user_id",
	"login_count",
	"last_login_at",
	"exports_requested",
	"privacy_changes",
	"created_at",
	"updated_at",
}

// AnalyticsRepository implements port.AnalyticsRepository.
type AnalyticsRepository struct {
	base
}

// NewAnalyticsRepository wires the per-user analytics repository.
func NewAnalyticsRepository(exec pgExecutor) *AnalyticsRepository {
	return &AnalyticsRepository{base: newBase(exec)}
}

// GetOrCreate returns the user's aggregate, creating a zeroed one on first access.
func (r *AnalyticsRepository) GetOrCreate(ctx context.Context, defaults domain.UserAnalytics) (*domain.UserAnalytics, error) {
	if defaults.ID == "" {
		defaults.ID = uuid.NewString()
	}
	insert, args, err := r.builder.Insert(analyticsTable).
		Columns(analyticsColumns...).
		Values(
			defaults.ID,
			defaults.UserID,
			defaults.LoginCount,
			defaults.LastLoginAt,
			defaults.ExportsRequested,
			defaults.PrivacyChanges,
			defaults.CreatedAt,
			defaults.UpdatedAt,
		).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert analytics sql: %w", err)
	}
	if _, err := r.execCount(ctx, insert, args, "insert analytics"); err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.
		Select(analyticsColumns...).
		From(analyticsTable).
		Where(squirrel.Eq{"user_id": defaults.UserID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select analytics sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var a domain.UserAnalytics
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(
		&a.ID,
		&a.UserID,
		&a.LoginCount,
		&a.LastLoginAt,
		&a.ExportsRequested,
		&a.PrivacyChanges,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan analytics: %w", err)
	}
	return &a, nil
}

// Increment adds delta to the user's counters, creating the row when absent.
func (r *AnalyticsRepository) Increment(ctx context.Context, userID string, delta domain.AnalyticsDelta) error {
	stmt, args, err := r.builder.Insert(analyticsTable).
		Columns("id", "user_id", "login_count", "last_login_at", "exports_requested", "privacy_changes", "created_at", "updated_at").
		Values(uuid.NewString(), userID, delta.Logins, delta.LoginAt, delta.Exports, delta.PrivacyChanges, squirrel.Expr("now()"), squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			login_count = identity.user_analytics.login_count + EXCLUDED.login_count,
			last_login_at = COALESCE(EXCLUDED.last_login_at, identity.user_analytics.last_login_at),
			exports_requested = identity.user_analytics.exports_requested + EXCLUDED.exports_requested,
			privacy_changes = identity.user_analytics.privacy_changes + EXCLUDED.privacy_changes,
			updated_at = now()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment analytics sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "increment analytics")
	return err
}
