package domain

import (
	"fmt"
	"time"
)

// Visibility controls who can see a class of user data.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFriends   Visibility = "friends"
	VisibilityPrivate   Visibility = "private"
	VisibilityAnonymous Visibility = "anonymous"
)

// Valid reports whether v is a recognized visibility level.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate, VisibilityAnonymous:
		return true
	}
	return false
}

const (
	MinRetentionMonths = 1
	MaxRetentionMonths = 120

	DefaultConsentVersion = "1.0"
)

// PrivacySettings is bound 1:1 to a user and created on first read.
type PrivacySettings struct {
	ID     string
	UserID string

	ProfileVisibility       Visibility
	WardrobeVisibility      Visibility
	OutfitHistoryVisibility Visibility
	InsightsVisibility      Visibility

	AllowAnalyticsSharing        bool
	AllowStyleRecommendations    bool
	AllowSocialFeatures          bool
	AllowMarketingCommunications bool
	AllowThirdPartyIntegrations  bool

	AutoDeleteOldData   bool
	DataRetentionMonths int

	SecurityNotifications       bool
	PrivacyUpdateNotifications  bool
	DataProcessingNotifications bool

	DataProcessingConsent bool
	ConsentDate           *time.Time
	ConsentVersion        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPrivacySettings returns the documented defaults for a new user.
func DefaultPrivacySettings(userID string, now time.Time) PrivacySettings {
	consent := now
	return PrivacySettings{
		UserID:                       userID,
		ProfileVisibility:            VisibilityPrivate,
		WardrobeVisibility:           VisibilityPrivate,
		OutfitHistoryVisibility:      VisibilityPrivate,
		InsightsVisibility:           VisibilityPrivate,
		AllowAnalyticsSharing:        false,
		AllowStyleRecommendations:    true,
		AllowSocialFeatures:          false,
		AllowMarketingCommunications: false,
		AllowThirdPartyIntegrations:  false,
		AutoDeleteOldData:            false,
		DataRetentionMonths:          24,
		SecurityNotifications:        true,
		PrivacyUpdateNotifications:   true,
		DataProcessingNotifications:  false,
		DataProcessingConsent:        true,
		ConsentDate:                  &consent,
		ConsentVersion:               DefaultConsentVersion,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
}

// FieldChange records one field's transition for audit metadata.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// PrivacyPatch is a partial assignment of recognized privacy fields.
type PrivacyPatch struct {
	ProfileVisibility       *Visibility
	WardrobeVisibility      *Visibility
	OutfitHistoryVisibility *Visibility
	InsightsVisibility      *Visibility

	AllowAnalyticsSharing        *bool
	AllowStyleRecommendations    *bool
	AllowSocialFeatures          *bool
	AllowMarketingCommunications *bool
	AllowThirdPartyIntegrations  *bool

	AutoDeleteOldData   *bool
	DataRetentionMonths *int

	SecurityNotifications       *bool
	PrivacyUpdateNotifications  *bool
	DataProcessingNotifications *bool

	DataProcessingConsent *bool
	ConsentVersion        *string
}

// Validate checks the patch values without touching any settings.
func (p PrivacyPatch) Validate() error {
	for name, v := range map[string]*Visibility{
		"profile_visibility":        p.ProfileVisibility,
		"wardrobe_visibility":       p.WardrobeVisibility,
		"outfit_history_visibility": p.OutfitHistoryVisibility,
		"insights_visibility":       p.InsightsVisibility,
	} {
		if v != nil && !v.Valid() {
			return Validation(name, "must be one of public, friends, private, anonymous")
		}
	}
	if p.DataRetentionMonths != nil {
		m := *p.DataRetentionMonths
		if m < MinRetentionMonths || m > MaxRetentionMonths {
			return Validation("data_retention_months", "must be between %d and %d", MinRetentionMonths, MaxRetentionMonths)
		}
	}
	if p.ConsentVersion != nil && *p.ConsentVersion == "" {
		return Validation("consent_version", "must not be empty")
	}
	return nil
}

// Apply assigns the patch onto s and returns the diff keyed by wire field name.
// Granting consent stamps the consent date; the version falls back to the current one.
func (p PrivacyPatch) Apply(s *PrivacySettings, now time.Time) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	vis := func(name string, dst *Visibility, src *Visibility) {
		if src != nil && *dst != *src {
			changes[name] = FieldChange{From: string(*dst), To: string(*src)}
			*dst = *src
		}
	}
	flag := func(name string, dst *bool, src *bool) {
		if src != nil && *dst != *src {
			changes[name] = FieldChange{From: *dst, To: *src}
			*dst = *src
		}
	}

	vis("profile_visibility", &s.ProfileVisibility, p.ProfileVisibility)
	vis("wardrobe_visibility", &s.WardrobeVisibility, p.WardrobeVisibility)
	vis("outfit_history_visibility", &s.OutfitHistoryVisibility, p.OutfitHistoryVisibility)
	vis("insights_visibility", &s.InsightsVisibility, p.InsightsVisibility)

	flag("allow_analytics_sharing", &s.AllowAnalyticsSharing, p.AllowAnalyticsSharing)
	flag("allow_style_recommendations", &s.AllowStyleRecommendations, p.AllowStyleRecommendations)
	flag("allow_social_features", &s.AllowSocialFeatures, p.AllowSocialFeatures)
	flag("allow_marketing_communications", &s.AllowMarketingCommunications, p.AllowMarketingCommunications)
	flag("allow_third_party_integrations", &s.AllowThirdPartyIntegrations, p.AllowThirdPartyIntegrations)
	flag("auto_delete_old_data", &s.AutoDeleteOldData, p.AutoDeleteOldData)
	flag("security_notifications", &s.SecurityNotifications, p.SecurityNotifications)
	flag("privacy_update_notifications", &s.PrivacyUpdateNotifications, p.PrivacyUpdateNotifications)
	flag("data_processing_notifications", &s.DataProcessingNotifications, p.DataProcessingNotifications)

	if p.DataRetentionMonths != nil && s.DataRetentionMonths != *p.DataRetentionMonths {
		changes["data_retention_months"] = FieldChange{From: s.DataRetentionMonths, To: *p.DataRetentionMonths}
		s.DataRetentionMonths = *p.DataRetentionMonths
	}

	if p.ConsentVersion != nil && s.ConsentVersion != *p.ConsentVersion {
		changes["consent_version"] = FieldChange{From: s.ConsentVersion, To: *p.ConsentVersion}
		s.ConsentVersion = *p.ConsentVersion
	}

	if p.DataProcessingConsent != nil && s.DataProcessingConsent != *p.DataProcessingConsent {
		changes["data_processing_consent"] = FieldChange{From: s.DataProcessingConsent, To: *p.DataProcessingConsent}
		s.DataProcessingConsent = *p.DataProcessingConsent
		if s.DataProcessingConsent {
			stamp := now
			s.ConsentDate = &stamp
			if s.ConsentVersion == "" {
				s.ConsentVersion = DefaultConsentVersion
			}
		}
	}

	if len(changes) > 0 {
		s.UpdatedAt = now
	}
	return changes
}

// CheckConsentInvariant enforces that a consent date always carries a version.
func (s PrivacySettings) CheckConsentInvariant() error {
	if s.ConsentDate != nil && s.ConsentVersion == "" {
		return fmt.Errorf("privacy settings %s: consent date without consent version", s.ID)
	}
	return nil
}

// TwoFactorMethod enumerates second-factor delivery options.
type TwoFactorMethod string

const (
	TwoFactorNone  TwoFactorMethod = "none"
	TwoFactorSMS   TwoFactorMethod = "sms"
	TwoFactorEmail TwoFactorMethod = "email"
	TwoFactorApp   TwoFactorMethod = "app"
)

// Valid reports whether m is a recognized second-factor method.
func (m TwoFactorMethod) Valid() bool {
	switch m {
	case TwoFactorNone, TwoFactorSMS, TwoFactorEmail, TwoFactorApp:
		return true
	}
	return false
}

const (
	MinSessionTimeoutMinutes = 15
	MaxSessionTimeoutMinutes = 480
	MinConcurrentSessions    = 1
	MaxConcurrentSessions    = 10

	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// SecuritySettings is bound 1:1 to a user and created on first read.
type SecuritySettings struct {
	ID     string
	UserID string

	TwoFactorEnabled bool
	TwoFactorMethod  TwoFactorMethod

	SessionTimeoutMinutes  int
	MaxConcurrentSessions  int
	LogoutInactiveSessions bool

	NotifyNewDeviceLogin bool
	NotifyPasswordChange bool
	NotifyPrivacyChanges bool
	NotifyDataExport     bool

	// TrustedDevices is stored for the user's reference; no flow consumes it yet.
	TrustedDevices []string

	LastPasswordChange  *time.Time
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DefaultSecuritySettings returns the documented defaults for a new user.
func DefaultSecuritySettings(userID string, now time.Time) SecuritySettings {
	return SecuritySettings{
		UserID:                 userID,
		TwoFactorEnabled:       false,
		TwoFactorMethod:        TwoFactorNone,
		SessionTimeoutMinutes:  60,
		MaxConcurrentSessions:  3,
		LogoutInactiveSessions: true,
		NotifyNewDeviceLogin:   true,
		NotifyPasswordChange:   true,
		NotifyPrivacyChanges:   true,
		NotifyDataExport:       true,
		TrustedDevices:         []string{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// IsLocked reports whether the account is locked at the supplied moment.
func (s SecuritySettings) IsLocked(at time.Time) bool {
	return s.AccountLockedUntil != nil && at.Before(*s.AccountLockedUntil)
}

// RegisterFailedLogin increments the failure counter. Reaching threshold locks the
// account for duration and resets the counter; it returns true when the lock was set.
func (s *SecuritySettings) RegisterFailedLogin(at time.Time, threshold int, duration time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	s.FailedLoginAttempts++
	s.UpdatedAt = at
	if s.FailedLoginAttempts >= threshold {
		until := at.Add(duration)
		s.AccountLockedUntil = &until
		s.FailedLoginAttempts = 0
		return true
	}
	return false
}

// RegisterSuccessfulLogin clears the failure counter and any expired lock.
func (s *SecuritySettings) RegisterSuccessfulLogin(at time.Time) {
	s.FailedLoginAttempts = 0
	if s.AccountLockedUntil != nil && !at.Before(*s.AccountLockedUntil) {
		s.AccountLockedUntil = nil
	}
	s.UpdatedAt = at
}

// IdleTimeout converts the session timeout setting into a duration.
func (s SecuritySettings) IdleTimeout() time.Duration {
	if s.SessionTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(s.SessionTimeoutMinutes) * time.Minute
}

// SecurityPatch is a partial update of user-editable security settings.
type SecurityPatch struct {
	TwoFactorEnabled       *bool
	TwoFactorMethod        *TwoFactorMethod
	SessionTimeoutMinutes  *int
	MaxConcurrentSessions  *int
	LogoutInactiveSessions *bool
	NotifyNewDeviceLogin   *bool
	NotifyPasswordChange   *bool
	NotifyPrivacyChanges   *bool
	NotifyDataExport       *bool
}

// Validate checks enumerated values; numeric ranges are clamped by Apply.
func (p SecurityPatch) Validate() error {
	if p.TwoFactorMethod != nil && !p.TwoFactorMethod.Valid() {
		return Validation("two_factor_method", "must be one of none, sms, email, app")
	}
	return nil
}

// Apply assigns the patch onto s, clamping the numeric settings into their allowed ranges.
func (p SecurityPatch) Apply(s *SecuritySettings, now time.Time) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	flag := func(name string, dst *bool, src *bool) {
		if src != nil && *dst != *src {
			changes[name] = FieldChange{From: *dst, To: *src}
			*dst = *src
		}
	}
	number := func(name string, dst *int, src *int, min, max int) {
		if src == nil {
			return
		}
		v := clampInt(*src, min, max)
		if *dst != v {
			changes[name] = FieldChange{From: *dst, To: v}
			*dst = v
		}
	}

	flag("two_factor_enabled", &s.TwoFactorEnabled, p.TwoFactorEnabled)
	if p.TwoFactorMethod != nil && s.TwoFactorMethod != *p.TwoFactorMethod {
		changes["two_factor_method"] = FieldChange{From: string(s.TwoFactorMethod), To: string(*p.TwoFactorMethod)}
		s.TwoFactorMethod = *p.TwoFactorMethod
	}
	number("session_timeout_minutes", &s.SessionTimeoutMinutes, p.SessionTimeoutMinutes, MinSessionTimeoutMinutes, MaxSessionTimeoutMinutes)
	number("max_concurrent_sessions", &s.MaxConcurrentSessions, p.MaxConcurrentSessions, MinConcurrentSessions, MaxConcurrentSessions)
	flag("logout_inactive_sessions", &s.LogoutInactiveSessions, p.LogoutInactiveSessions)
	flag("notify_new_device_login", &s.NotifyNewDeviceLogin, p.NotifyNewDeviceLogin)
	flag("notify_password_change", &s.NotifyPasswordChange, p.NotifyPasswordChange)
	flag("notify_privacy_changes", &s.NotifyPrivacyChanges, p.NotifyPrivacyChanges)
	flag("notify_data_export", &s.NotifyDataExport, p.NotifyDataExport)

	if len(changes) > 0 {
		s.UpdatedAt = now
	}
	return changes
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
