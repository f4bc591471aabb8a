package domain

import "time"

// Artifact names a user-scoped cached projection owned by one service.
type Artifact string

const (
	ArtifactProfile  Artifact = "profile"
	ArtifactWardrobe Artifact = "wardrobe"
	ArtifactToken    Artifact = "token"
)

// Invalidation announces that cached copies of (UserID, Artifact) are stale.
type Invalidation struct {
	UserID     string
	Artifact   Artifact
	Reason     string
	Source     string
	OccurredAt time.Time
}

// AuditMessage carries an audit event from any service to the identity sink.
// Messages sharing an IdempotencyKey collapse to one stored event.
type AuditMessage struct {
	IdempotencyKey string         `json:"idempotency_key"`
	UserID         *string        `json:"user_id,omitempty"`
	EventType      AuditEventType `json:"event_type"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	Source         string         `json:"source"`
	Context        RequestContext `json:"context"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Event converts the message into the stored form.
func (m AuditMessage) Event() AuditEvent {
	return AuditEvent{
		IdempotencyKey: m.IdempotencyKey,
		UserID:         m.UserID,
		EventType:      m.EventType,
		Severity:       m.Severity,
		Description:    m.Description,
		Source:         m.Source,
		Context:        m.Context,
		Metadata:       m.Metadata,
		CreatedAt:      m.OccurredAt,
	}
}

// Validate checks the fields the sink requires.
func (m AuditMessage) Validate() error {
	if m.IdempotencyKey == "" {
		return Validation("idempotency_key", "is required")
	}
	if !m.EventType.Valid() {
		return Validation("event_type", "is not recognized")
	}
	if !m.Severity.Valid() {
		return Validation("severity", "must be one of info, warning, critical")
	}
	return nil
}

// NotificationMessage asks the social service to notify a user.
type NotificationMessage struct {
	IdempotencyKey string           `json:"idempotency_key"`
	RecipientID    string           `json:"recipient_id"`
	SenderID       *string          `json:"sender_id,omitempty"`
	Kind           NotificationKind `json:"kind"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	EntityType     string           `json:"entity_type,omitempty"`
	EntityID       string           `json:"entity_id,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Notification converts the message into the stored form.
func (m NotificationMessage) Notification() Notification {
	return Notification{
		RecipientID: m.RecipientID,
		SenderID:    m.SenderID,
		Kind:        m.Kind,
		Title:       m.Title,
		Message:     m.Message,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		CreatedAt:   m.OccurredAt,
	}
}

// UserProfileSnapshot is the identity service's profile as seen by siblings.
type UserProfileSnapshot struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email,omitempty"`
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	AgeRange         string   `json:"age_range"`
	StylePreference  string   `json:"style_preference"`
	ColorPreferences []string `json:"color_preferences"`
	BudgetRange      string   `json:"budget_range"`
}

// Snapshot projects the user into the cross-service profile view.
func (u User) Snapshot() UserProfileSnapshot {
	colors := u.ColorPreferences
	if colors == nil {
		colors = []string{}
	}
	return UserProfileSnapshot{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		AgeRange:         u.AgeRange,
		StylePreference:  u.StylePreference,
		ColorPreferences: colors,
		BudgetRange:      u.BudgetRange,
	}
}

// WardrobeSummary is the wardrobe service's item view as seen by siblings.
type WardrobeSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	ColorPrimary   string `json:"color_primary"`
	ColorSecondary string `json:"color_secondary,omitempty"`
	Favorite       bool   `json:"favorite"`
	WearCount      int    `json:"wear_count"`
}

// UserStatus is what the identity service reports about an account to siblings.
type UserStatus struct {
	UserID   string `json:"user_id"`
	IsActive bool   `json:"is_active"`
	Locked   bool   `json:"locked"`
}
