package domain

import "time"

// AuditEventType enumerates security-relevant actions.
type AuditEventType string

const (
	EventLoginSuccess         AuditEventType = "login_success"
	EventLoginFailed          AuditEventType = "login_failed"
	EventPasswordChange       AuditEventType = "password_change"
	EventAccountLocked        AuditEventType = "account_locked"
	EventSuspiciousActivity   AuditEventType = "suspicious_activity"
	EventDataAccess           AuditEventType = "data_access"
	EventDataExport           AuditEventType = "data_export"
	EventPrivacySettingChange AuditEventType = "privacy_setting_change"
	EventAccountDeletion      AuditEventType = "account_deletion"
	EventTokenRefresh         AuditEventType = "token_refresh"
	EventUnauthorizedAccess   AuditEventType = "unauthorized_access"
)

// Valid reports whether t is a recognized event type.
func (t AuditEventType) Valid() bool {
	switch t {
	case EventLoginSuccess, EventLoginFailed, EventPasswordChange, EventAccountLocked,
		EventSuspiciousActivity, EventDataAccess, EventDataExport, EventPrivacySettingChange,
		EventAccountDeletion, EventTokenRefresh, EventUnauthorizedAccess:
		return true
	}
	return false
}

// Severity is assigned when an audit event is emitted and never changes.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a recognized severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

const (
	DefaultAuditWindowDays      = 30
	MaxAuditWindowDays          = 90
	DefaultDataAccessWindowDays = 7
	MaxDataAccessWindowDays     = 30
	AuditQueryLimit             = 100

	// CriticalRetention is the minimum retention for critical audit events.
	CriticalRetention = 7 * 365 * 24 * time.Hour
)

// AuditEvent is an immutable record of a security-relevant action.
// Only Resolved and ResolutionNotes may change after insertion.
type AuditEvent struct {
	ID              string
	IdempotencyKey  string
	UserID          *string
	EventType       AuditEventType
	Severity        Severity
	Description     string
	Source          string
	Context         RequestContext
	Metadata        map[string]any
	Resolved        bool
	ResolutionNotes string
	CreatedAt       time.Time
}

// AuditFilter scopes an audit-log read to one user and a bounded window.
type AuditFilter struct {
	UserID   string
	Since    time.Time
	Severity *Severity
	Limit    int
}

// AccessType enumerates data-access operations.
type AccessType string

const (
	AccessRead   AccessType = "read"
	AccessWrite  AccessType = "write"
	AccessUpdate AccessType = "update"
	AccessDelete AccessType = "delete"
)

// Valid reports whether a is a recognized access type.
func (a AccessType) Valid() bool {
	switch a {
	case AccessRead, AccessWrite, AccessUpdate, AccessDelete:
		return true
	}
	return false
}

// LegalBasis enumerates the lawful grounds for processing user data.
type LegalBasis string

const (
	LegalBasisConsent            LegalBasis = "consent"
	LegalBasisContract           LegalBasis = "contract"
	LegalBasisLegalObligation    LegalBasis = "legal_obligation"
	LegalBasisLegitimateInterest LegalBasis = "legitimate_interest"
)

const DefaultDataAccessRetentionDays = 365

// DataAccessEvent is an immutable record of a read or write against user data.
type DataAccessEvent struct {
	ID            string
	UserID        string
	DataType      string
	AccessType    AccessType
	AccessedBy    string
	Purpose       string
	LegalBasis    LegalBasis
	RetentionDays int
	Context       RequestContext
	CreatedAt     time.Time
}

// DataAccessFilter scopes a data-access read to one user and a bounded window.
type DataAccessFilter struct {
	UserID   string
	Since    time.Time
	DataType string
	Limit    int
}

// AuditSummary aggregates an audit-log page for the transparency view.
type AuditSummary struct {
	TotalEvents int              `json:"total_events"`
	BySeverity  map[Severity]int `json:"by_severity"`
	PeriodDays  int              `json:"period_days"`
}

// SummarizeAudit counts events by severity.
func SummarizeAudit(events []AuditEvent, days int) AuditSummary {
	summary := AuditSummary{
		TotalEvents: len(events),
		BySeverity: map[Severity]int{
			SeverityInfo:     0,
			SeverityWarning:  0,
			SeverityCritical: 0,
		},
		PeriodDays: days,
	}
	for _, e := range events {
		summary.BySeverity[e.Severity]++
	}
	return summary
}

// DataAccessSummary aggregates a data-access page for the transparency view.
type DataAccessSummary struct {
	TotalAccesses     int      `json:"total_accesses"`
	DataTypesAccessed []string `json:"data_types_accessed"`
	ReadAccesses      int      `json:"read_accesses"`
	WriteAccesses     int      `json:"write_accesses"`
	PeriodDays        int      `json:"period_days"`
}

// SummarizeDataAccess counts reads and writes and lists distinct data types in first-seen order.
func SummarizeDataAccess(events []DataAccessEvent, days int) DataAccessSummary {
	summary := DataAccessSummary{
		TotalAccesses:     len(events),
		DataTypesAccessed: []string{},
		PeriodDays:        days,
	}
	seen := make(map[string]struct{})
	for _, e := range events {
		if _, ok := seen[e.DataType]; !ok {
			seen[e.DataType] = struct{}{}
			summary.DataTypesAccessed = append(summary.DataTypesAccessed, e.DataType)
		}
		if e.AccessType == AccessRead {
			summary.ReadAccesses++
		} else {
			summary.WriteAccesses++
		}
	}
	return summary
}
