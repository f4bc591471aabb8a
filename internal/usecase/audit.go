package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	auditSourceIdentity   = "identity"
	transparencyPurpose   = "transparency"
	dataTypeAuditLog      = "audit_log"
	dataTypeDataAccessLog = "data_access_log"
)

// ErrAuditEventNotFound is returned when resolving an event the user does not own.
var ErrAuditEventNotFound = domain.NotFound("audit_event")

// AuditLog is the transparency view of a user's audit trail.
type AuditLog struct {
	Events  []domain.AuditEvent
	Summary domain.AuditSummary
}

// DataAccessLog is the transparency view of a user's data-access trail.
type DataAccessLog struct {
	Events  []domain.DataAccessEvent
	Summary domain.DataAccessSummary
}

// AuditService is the single writer of audit and data-access events.
type AuditService struct {
	audits     port.AuditRepository
	dataAccess port.DataAccessRepository
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(audits port.AuditRepository, dataAccess port.DataAccessRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		audits:     audits,
		dataAccess: dataAccess,
		logger:     logger,
		now:        utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics counts written events.
func (s *AuditService) WithMetrics(m *telemetry.Metrics) *AuditService {
	s.metrics = m
	return s
}

// RecordAudit stores msg unless an event with the same idempotency key exists.
// It is the sink for the internal endpoint and the audit topic consumer.
func (s *AuditService) RecordAudit(ctx context.Context, msg domain.AuditMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = s.now()
	}
	if msg.Source == "" {
		msg.Source = auditSourceIdentity
	}

	inserted, err := s.audits.Insert(ctx, msg.Event())
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	if !inserted {
		s.logger.Debug("duplicate audit event ignored", zap.String("idempotency_key", msg.IdempotencyKey))
		return nil
	}
	s.metrics.AuditEventWritten(string(msg.EventType), string(msg.Severity))
	return nil
}

// emit writes an event raised inside the identity service itself.
func (s *AuditService) emit(ctx context.Context, userID *string, eventType domain.AuditEventType, severity domain.Severity, description string, rc domain.RequestContext, metadata map[string]any) error {
	return s.RecordAudit(ctx, domain.AuditMessage{
		IdempotencyKey: ksuid.New().String(),
		UserID:         userID,
		EventType:      eventType,
		Severity:       severity,
		Description:    description,
		Source:         auditSourceIdentity,
		Context:        rc,
		Metadata:       metadata,
		OccurredAt:     s.now(),
	})
}

// RecordDataAccess appends a data-access event, filling the documented defaults.
func (s *AuditService) RecordDataAccess(ctx context.Context, event domain.DataAccessEvent) error {
	if strings.TrimSpace(event.UserID) == "" {
		return domain.Validation("user_id", "is required")
	}
	if event.DataType == "" {
		return domain.Validation("data_type", "is required")
	}
	if !event.AccessType.Valid() {
		return domain.Validation("access_type", "must be one of read, write, update, delete")
	}
	if event.AccessedBy == "" {
		event.AccessedBy = "user"
	}
	if event.LegalBasis == "" {
		event.LegalBasis = domain.LegalBasisConsent
	}
	if event.RetentionDays <= 0 {
		event.RetentionDays = domain.DefaultDataAccessRetentionDays
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if err := s.dataAccess.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert data access event: %w", err)
	}
	return nil
}

// access is shorthand for a user-initiated data-access record.
func (s *AuditService) access(ctx context.Context, userID, dataType string, accessType domain.AccessType, purpose string, rc domain.RequestContext) error {
	return s.RecordDataAccess(ctx, domain.DataAccessEvent{
		UserID:     userID,
		DataType:   dataType,
		AccessType: accessType,
		Purpose:    purpose,
		Context:    rc,
	})
}

// ListAudit returns the user's audit events for the last days (1..90, default 30).
func (s *AuditService) ListAudit(ctx context.Context, userID string, days int, severity string, rc domain.RequestContext) (*AuditLog, error) {
	days, err := clampDays(days, domain.DefaultAuditWindowDays, domain.MaxAuditWindowDays)
	if err != nil {
		return nil, err
	}
	filter := domain.AuditFilter{
		UserID: userID,
		Since:  s.now().Add(-time.Duration(days) * 24 * time.Hour),
		Limit:  domain.AuditQueryLimit,
	}
	if severity != "" {
		sev := domain.Severity(strings.ToLower(severity))
		if !sev.Valid() {
			return nil, domain.Validation("severity", "must be one of info, warning, critical")
		}
		filter.Severity = &sev
	}

	events, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	if err := s.access(ctx, userID, dataTypeAuditLog, domain.AccessRead, transparencyPurpose, rc); err != nil {
		return nil, err
	}
	return &AuditLog{Events: events, Summary: domain.SummarizeAudit(events, days)}, nil
}

// ListDataAccess returns the user's data-access events for the last days (1..30, default 7).
func (s *AuditService) ListDataAccess(ctx context.Context, userID string, days int, dataType string, rc domain.RequestContext) (*DataAccessLog, error) {
	days, err := clampDays(days, domain.DefaultDataAccessWindowDays, domain.MaxDataAccessWindowDays)
	if err != nil {
		return nil, err
	}
	events, err := s.dataAccess.List(ctx, domain.DataAccessFilter{
		UserID:   userID,
		Since:    s.now().Add(-time.Duration(days) * 24 * time.Hour),
		DataType: strings.TrimSpace(dataType),
		Limit:    domain.AuditQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list data access events: %w", err)
	}
	if err := s.access(ctx, userID, dataTypeDataAccessLog, domain.AccessRead, transparencyPurpose, rc); err != nil {
		return nil, err
	}
	return &DataAccessLog{Events: events, Summary: domain.SummarizeDataAccess(events, days)}, nil
}

// Resolve marks one of the user's audit events as resolved.
func (s *AuditService) Resolve(ctx context.Context, userID, eventID, notes string) error {
	if strings.TrimSpace(eventID) == "" {
		return domain.Validation("event_id", "is required")
	}
	if len(notes) > 1000 {
		return domain.Validation("resolution_notes", "must be at most 1000 characters")
	}
	if err := s.audits.Resolve(ctx, userID, eventID, strings.TrimSpace(notes)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAuditEventNotFound
		}
		return fmt.Errorf("resolve audit event: %w", err)
	}
	return nil
}

var _ port.AuditRecorder = (*AuditService)(nil)
