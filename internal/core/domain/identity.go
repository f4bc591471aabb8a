package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DeletionGracePeriod is how long a deactivated account may be reactivated before hard deletion.
const DeletionGracePeriod = 30 * 24 * time.Hour

// DeletionConfirmationPhrase must be supplied verbatim to deactivate an account.
const DeletionConfirmationPhrase = "delete my account"

// User mirrors the persisted representation in the users table.
type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	AgeRange           string
	StylePreference    string
	ColorPreferences   []string
	BudgetRange        string
	IsActive           bool
	DeactivatedAt      *time.Time
	LastLogin          *time.Time
	LastPasswordChange time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanReactivate reports whether a deactivated account is still inside the grace window.
func (u User) CanReactivate(at time.Time) bool {
	if u.IsActive || u.DeactivatedAt == nil {
		return false
	}
	return at.Before(u.DeactivatedAt.Add(DeletionGracePeriod))
}

// DisplayName returns the first name when present, otherwise the username.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// ProfilePatch is a partial update of the user's display attributes.
type ProfilePatch struct {
	FirstName        *string
	LastName         *string
	AgeRange         *string
	StylePreference  *string
	ColorPreferences *[]string
	BudgetRange      *string
}

// Apply assigns every set field onto the user and reports whether anything changed.
func (p ProfilePatch) Apply(u *User) bool {
	changed := false
	assign := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	assign(&u.FirstName, p.FirstName)
	assign(&u.LastName, p.LastName)
	assign(&u.AgeRange, p.AgeRange)
	assign(&u.StylePreference, p.StylePreference)
	assign(&u.BudgetRange, p.BudgetRange)
	if p.ColorPreferences != nil {
		u.ColorPreferences = append([]string(nil), (*p.ColorPreferences)...)
		changed = true
	}
	return changed
}

// Session is a persisted bearer token bound to a user. Only the token hash is stored.
type Session struct {
	ID                string
	UserID            string
	TokenHash         string
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	LastSeenAt        time.Time
	RevokedAt         *time.Time
	RevokeReason      string
}

// IsActive reports whether the session is neither revoked, expired nor idle past idleTimeout.
func (s Session) IsActive(at time.Time, idleTimeout time.Duration) bool {
	if s.RevokedAt != nil {
		return false
	}
	if !s.ExpiresAt.After(at) {
		return false
	}
	if idleTimeout > 0 && at.Sub(s.LastSeenAt) > idleTimeout {
		return false
	}
	return true
}

// DeviceFingerprint derives a short stable identifier from user agent and address.
func DeviceFingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])[:16]
}

// IssuedToken is returned to the client once; the raw token is never persisted.
type IssuedToken struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// TokenVerification is the result of a successful VerifyToken call.
type TokenVerification struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserAnalytics is a per-user aggregate created on first access.
type UserAnalytics struct {
	ID               string
	UserID           string
	LoginCount       int
	LastLoginAt      *time.Time
	ExportsRequested int
	PrivacyChanges   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AnalyticsDelta increments counters on the aggregate.
type AnalyticsDelta struct {
	Logins         int
	LoginAt        *time.Time
	Exports        int
	PrivacyChanges int
}

// RequestContext captures the origin of an action for audit purposes.
type RequestContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Method    string `json:"method,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
