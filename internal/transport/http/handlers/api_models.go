package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
)

// ErrorResponse is the error body shared by every service.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Error:   code,
		Message: message,
		TraceID: traceID(c),
	}
}

func traceID(c *gin.Context) string {
	return middleware.GetTraceID(c)
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// RegisterRequest defines the payload for account registration.
type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// RegisterResponse is returned when an account is created.
type RegisterResponse struct {
	Message          string       `json:"message"`
	User             UserResponse `json:"user"`
	PasswordStrength int          `json:"password_strength"`
}

// LoginRequest accepts a username or email as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Message     string       `json:"message"`
	Token       string       `json:"token"`
	TokenType   string       `json:"token_type"`
	SessionID   string       `json:"session_id"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
	Reactivated bool         `json:"reactivated,omitempty"`
}

// TokenResponse is returned by token refresh.
type TokenResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyTokenRequest lets a caller verify a token passed in the body.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyTokenResponse is the token contract consumed by sibling services.
type VerifyTokenResponse struct {
	Message   string    `json:"message"`
	Valid     bool      `json:"valid"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChangePasswordRequest carries the current and the new password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePasswordResponse summarizes a password change.
type ChangePasswordResponse struct {
	Message         string    `json:"message"`
	ChangedAt       time.Time `json:"changed_at"`
	SessionsRevoked int       `json:"sessions_revoked"`
}

// UserResponse is the public view of an account; the password hash never leaves the service.
type UserResponse struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	AgeRange         string     `json:"age_range"`
	StylePreference  string     `json:"style_preference"`
	ColorPreferences []string   `json:"color_preferences"`
	BudgetRange      string     `json:"budget_range"`
	IsActive         bool       `json:"is_active"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func newUserResponse(u domain.User) UserResponse {
	colors := u.ColorPreferences
	if colors == nil {
		colors = []string{}
	}
	return UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		AgeRange:         u.AgeRange,
		StylePreference:  u.StylePreference,
		ColorPreferences: colors,
		BudgetRange:      u.BudgetRange,
		IsActive:         u.IsActive,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// ProfileRequest is a partial profile update.
type ProfileRequest struct {
	FirstName        *string   `json:"first_name"`
	LastName         *string   `json:"last_name"`
	AgeRange         *string   `json:"age_range"`
	StylePreference  *string   `json:"style_preference"`
	ColorPreferences *[]string `json:"color_preferences"`
	BudgetRange      *string   `json:"budget_range"`
}

func (r ProfileRequest) patch() domain.ProfilePatch {
	return domain.ProfilePatch{
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		AgeRange:         r.AgeRange,
		StylePreference:  r.StylePreference,
		ColorPreferences: r.ColorPreferences,
		BudgetRange:      r.BudgetRange,
	}
}

// ProfileResponse wraps the profile as sibling services expect it.
type ProfileResponse struct {
	Message string                     `json:"message"`
	Profile domain.UserProfileSnapshot `json:"profile"`
	User    UserResponse               `json:"user"`
}

// AnalyticsResponse is the per-user aggregate.
type AnalyticsResponse struct {
	Message          string     `json:"message"`
	LoginCount       int        `json:"login_count"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	ExportsRequested int        `json:"exports_requested"`
	PrivacyChanges   int        `json:"privacy_changes"`
}

// SessionResponse is one active session of the caller.
type SessionResponse struct {
	ID                string    `json:"id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address"`
	UserAgent         string    `json:"user_agent"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	Current           bool      `json:"current"`
}

// PrivacySettingsRequest is a partial privacy update.
type PrivacySettingsRequest struct {
	ProfileVisibility       *domain.Visibility `json:"profile_visibility"`
	WardrobeVisibility      *domain.Visibility `json:"wardrobe_visibility"`
	OutfitHistoryVisibility *domain.Visibility `json:"outfit_history_visibility"`
	InsightsVisibility      *domain.Visibility `json:"insights_visibility"`

	AllowAnalyticsSharing        *bool `json:"allow_analytics_sharing"`
	AllowStyleRecommendations    *bool `json:"allow_style_recommendations"`
	AllowSocialFeatures          *bool `json:"allow_social_features"`
	AllowMarketingCommunications *bool `json:"allow_marketing_communications"`
	AllowThirdPartyIntegrations  *bool `json:"allow_third_party_integrations"`

	AutoDeleteOldData   *bool `json:"auto_delete_old_data"`
	DataRetentionMonths *int  `json:"data_retention_months"`

	SecurityNotifications       *bool `json:"security_notifications"`
	PrivacyUpdateNotifications  *bool `json:"privacy_update_notifications"`
	DataProcessingNotifications *bool `json:"data_processing_notifications"`

	DataProcessingConsent *bool   `json:"data_processing_consent"`
	ConsentVersion        *string `json:"consent_version"`
}

func (r PrivacySettingsRequest) patch() domain.PrivacyPatch {
	return domain.PrivacyPatch{
		ProfileVisibility:            r.ProfileVisibility,
		WardrobeVisibility:           r.WardrobeVisibility,
		OutfitHistoryVisibility:      r.OutfitHistoryVisibility,
		InsightsVisibility:           r.InsightsVisibility,
		AllowAnalyticsSharing:        r.AllowAnalyticsSharing,
		AllowStyleRecommendations:    r.AllowStyleRecommendations,
		AllowSocialFeatures:          r.AllowSocialFeatures,
		AllowMarketingCommunications: r.AllowMarketingCommunications,
		AllowThirdPartyIntegrations:  r.AllowThirdPartyIntegrations,
		AutoDeleteOldData:            r.AutoDeleteOldData,
		DataRetentionMonths:          r.DataRetentionMonths,
		SecurityNotifications:        r.SecurityNotifications,
		PrivacyUpdateNotifications:   r.PrivacyUpdateNotifications,
		DataProcessingNotifications:  r.DataProcessingNotifications,
		DataProcessingConsent:        r.DataProcessingConsent,
		ConsentVersion:               r.ConsentVersion,
	}
}

// PrivacySettingsResponse is the full privacy view.
type PrivacySettingsResponse struct {
	Message                      string            `json:"message"`
	ProfileVisibility            domain.Visibility `json:"profile_visibility"`
	WardrobeVisibility           domain.Visibility `json:"wardrobe_visibility"`
	OutfitHistoryVisibility      domain.Visibility `json:"outfit_history_visibility"`
	InsightsVisibility           domain.Visibility `json:"insights_visibility"`
	AllowAnalyticsSharing        bool              `json:"allow_analytics_sharing"`
	AllowStyleRecommendations    bool              `json:"allow_style_recommendations"`
	AllowSocialFeatures          bool              `json:"allow_social_features"`
	AllowMarketingCommunications bool              `json:"allow_marketing_communications"`
	AllowThirdPartyIntegrations  bool              `json:"allow_third_party_integrations"`
	AutoDeleteOldData            bool              `json:"auto_delete_old_data"`
	DataRetentionMonths          int               `json:"data_retention_months"`
	SecurityNotifications        bool              `json:"security_notifications"`
	PrivacyUpdateNotifications   bool              `json:"privacy_update_notifications"`
	DataProcessingNotifications  bool              `json:"data_processing_notifications"`
	DataProcessingConsent        bool              `json:"data_processing_consent"`
	ConsentDate                  *time.Time        `json:"consent_date,omitempty"`
	ConsentVersion               string            `json:"consent_version"`
	UpdatedAt                    time.Time         `json:"updated_at"`
}

func newPrivacyResponse(s domain.PrivacySettings) PrivacySettingsResponse {
	return PrivacySettingsResponse{
		ProfileVisibility:            s.ProfileVisibility,
		WardrobeVisibility:           s.WardrobeVisibility,
		OutfitHistoryVisibility:      s.OutfitHistoryVisibility,
		InsightsVisibility:           s.InsightsVisibility,
		AllowAnalyticsSharing:        s.AllowAnalyticsSharing,
		AllowStyleRecommendations:    s.AllowStyleRecommendations,
		AllowSocialFeatures:          s.AllowSocialFeatures,
		AllowMarketingCommunications: s.AllowMarketingCommunications,
		AllowThirdPartyIntegrations:  s.AllowThirdPartyIntegrations,
		AutoDeleteOldData:            s.AutoDeleteOldData,
		DataRetentionMonths:          s.DataRetentionMonths,
		SecurityNotifications:        s.SecurityNotifications,
		PrivacyUpdateNotifications:   s.PrivacyUpdateNotifications,
		DataProcessingNotifications:  s.DataProcessingNotifications,
		DataProcessingConsent:        s.DataProcessingConsent,
		ConsentDate:                  s.ConsentDate,
		ConsentVersion:               s.ConsentVersion,
		UpdatedAt:                    s.UpdatedAt,
	}
}

// SecuritySettingsRequest is a partial security update.
type SecuritySettingsRequest struct {
	TwoFactorEnabled       *bool                   `json:"two_factor_enabled"`
	TwoFactorMethod        *domain.TwoFactorMethod `json:"two_factor_method"`
	SessionTimeoutMinutes  *int                    `json:"session_timeout_minutes"`
	MaxConcurrentSessions  *int                    `json:"max_concurrent_sessions"`
	LogoutInactiveSessions *bool                   `json:"logout_inactive_sessions"`
	NotifyNewDeviceLogin   *bool                   `json:"notify_new_device_login"`
	NotifyPasswordChange   *bool                   `json:"notify_password_change"`
	NotifyPrivacyChanges   *bool                   `json:"notify_privacy_changes"`
	NotifyDataExport       *bool                   `json:"notify_data_export"`
}

func (r SecuritySettingsRequest) patch() domain.SecurityPatch {
	return domain.SecurityPatch{
		TwoFactorEnabled:       r.TwoFactorEnabled,
		TwoFactorMethod:        r.TwoFactorMethod,
		SessionTimeoutMinutes:  r.SessionTimeoutMinutes,
		MaxConcurrentSessions:  r.MaxConcurrentSessions,
		LogoutInactiveSessions: r.LogoutInactiveSessions,
		NotifyNewDeviceLogin:   r.NotifyNewDeviceLogin,
		NotifyPasswordChange:   r.NotifyPasswordChange,
		NotifyPrivacyChanges:   r.NotifyPrivacyChanges,
		NotifyDataExport:       r.NotifyDataExport,
	}
}

// SecuritySettingsResponse omits the lockout counters.
type SecuritySettingsResponse struct {
	Message                string                 `json:"message"`
	TwoFactorEnabled       bool                   `json:"two_factor_enabled"`
	TwoFactorMethod        domain.TwoFactorMethod `json:"two_factor_method"`
	SessionTimeoutMinutes  int                    `json:"session_timeout_minutes"`
	MaxConcurrentSessions  int                    `json:"max_concurrent_sessions"`
	LogoutInactiveSessions bool                   `json:"logout_inactive_sessions"`
	NotifyNewDeviceLogin   bool                   `json:"notify_new_device_login"`
	NotifyPasswordChange   bool                   `json:"notify_password_change"`
	NotifyPrivacyChanges   bool                   `json:"notify_privacy_changes"`
	NotifyDataExport       bool                   `json:"notify_data_export"`
	TrustedDevices         []string               `json:"trusted_devices"`
	LastPasswordChange     *time.Time             `json:"last_password_change,omitempty"`
	UpdatedAt              time.Time              `json:"updated_at"`
}

func newSecurityResponse(s domain.SecuritySettings) SecuritySettingsResponse {
	devices := s.TrustedDevices
	if devices == nil {
		devices = []string{}
	}
	return SecuritySettingsResponse{
		TwoFactorEnabled:       s.TwoFactorEnabled,
		TwoFactorMethod:        s.TwoFactorMethod,
		SessionTimeoutMinutes:  s.SessionTimeoutMinutes,
		MaxConcurrentSessions:  s.MaxConcurrentSessions,
		LogoutInactiveSessions: s.LogoutInactiveSessions,
		NotifyNewDeviceLogin:   s.NotifyNewDeviceLogin,
		NotifyPasswordChange:   s.NotifyPasswordChange,
		NotifyPrivacyChanges:   s.NotifyPrivacyChanges,
		NotifyDataExport:       s.NotifyDataExport,
		TrustedDevices:         devices,
		LastPasswordChange:     s.LastPasswordChange,
		UpdatedAt:              s.UpdatedAt,
	}
}

// AuditEventResponse is one entry of the audit transparency log.
type AuditEventResponse struct {
	ID              string                `json:"id"`
	EventType       domain.AuditEventType `json:"event_type"`
	Severity        domain.Severity       `json:"severity"`
	Description     string                `json:"description"`
	Source          string                `json:"source"`
	IPAddress       string                `json:"ip_address,omitempty"`
	UserAgent       string                `json:"user_agent,omitempty"`
	Endpoint        string                `json:"endpoint,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
	Resolved        bool                  `json:"resolved"`
	ResolutionNotes string                `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// AuditLogResponse is the audit transparency view.
type AuditLogResponse struct {
	Message string               `json:"message"`
	Events  []AuditEventResponse `json:"events"`
	Summary domain.AuditSummary  `json:"summary"`
}

// DataAccessEventResponse is one entry of the data-access log.
type DataAccessEventResponse struct {
	ID            string            `json:"id"`
	DataType      string            `json:"data_type"`
	AccessType    domain.AccessType `json:"access_type"`
	AccessedBy    string            `json:"accessed_by"`
	Purpose       string            `json:"purpose"`
	LegalBasis    domain.LegalBasis `json:"legal_basis"`
	RetentionDays int               `json:"retention_days"`
	IPAddress     string            `json:"ip_address,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DataAccessLogResponse is the data-access transparency view.
type DataAccessLogResponse struct {
	Message    string                    `json:"message"`
	AccessLogs []DataAccessEventResponse `json:"access_logs"`
	Summary    domain.DataAccessSummary  `json:"summary"`
}

// ResolveAuditRequest carries the resolution notes.
type ResolveAuditRequest struct {
	Notes string `json:"notes"`
}

// ExportRequestPayload describes a new export.
type ExportRequestPayload struct {
	DataTypes []string `json:"data_types"`
	Format    string   `json:"format"`
}

// ExportResponse is the status view of an export request.
type ExportResponse struct {
	Message            string              `json:"message"`
	ID                 string              `json:"id"`
	RequestType        string              `json:"request_type"`
	DataTypes          []string            `json:"data_types"`
	Format             domain.ExportFormat `json:"format"`
	Status             domain.ExportStatus `json:"status"`
	ProgressPercentage int                 `json:"progress_percentage"`
	FileSizeBytes      int64               `json:"file_size_bytes"`
	DownloadToken      *string             `json:"download_token,omitempty"`
	ExpiresAt          *time.Time          `json:"expires_at,omitempty"`
	DownloadCount      int                 `json:"download_count"`
	MaxDownloads       int                 `json:"max_downloads"`
	CreatedAt          time.Time           `json:"created_at"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	ErrorMessage       string              `json:"error_message,omitempty"`
}

func newExportResponse(e domain.ExportRequest) ExportResponse {
	resp := ExportResponse{
		ID:                 e.ID,
		RequestType:        e.RequestType,
		DataTypes:          e.DataTypes,
		Format:             e.Format,
		Status:             e.Status,
		ProgressPercentage: e.Progress,
		FileSizeBytes:      e.FileSizeBytes,
		ExpiresAt:          e.ExpiresAt,
		DownloadCount:      e.DownloadCount,
		MaxDownloads:       e.MaxDownloads,
		CreatedAt:          e.CreatedAt,
		StartedAt:          e.StartedAt,
		CompletedAt:        e.CompletedAt,
		ErrorMessage:       e.ErrorMessage,
	}
	if resp.DataTypes == nil {
		resp.DataTypes = []string{}
	}
	if e.Status == domain.ExportCompleted {
		resp.DownloadToken = e.DownloadToken
	}
	return resp
}

// DeactivateRequest must carry the confirmation phrase verbatim.
type DeactivateRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
}

// DeactivateResponse tells the client until when the account can be reactivated.
type DeactivateResponse struct {
	Message          string    `json:"message"`
	DeactivatedAt    time.Time `json:"deactivated_at"`
	ReactivableUntil time.Time `json:"reactivable_until"`
	SessionsRevoked  int       `json:"sessions_revoked"`
}
