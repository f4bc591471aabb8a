package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

const (
	auditTable      = "identity.audit_events"
	dataAccessTable = "identity.data_access_events"
)

var auditColumns = []string{
	"id",
	"idempotency_key",
	"user_id",
	"event_type",
	"severity",
	"description",
	"source",
	"ip_address",
	"user_agent",
	"endpoint",
	"method",
	"request_id",
	"metadata",
	"resolved",
	"resolution_notes",
	"created_at",
}

// AuditRepository implements port.AuditRepository.
type AuditRepository struct {
	base
}

// NewAuditRepository wires the audit event repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{base: newBase(exec)}
}

// Insert appends an event; duplicates by idempotency key are dropped.
func (r *AuditRepository) Insert(ctx context.Context, event domain.AuditEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.IdempotencyKey == "" {
		event.IdempotencyKey = event.ID
	}
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return false, err
	}

	stmt, args, err := r.builder.Insert(auditTable).
		Columns(auditColumns...).
		Values(
			event.ID,
			event.IdempotencyKey,
			event.UserID,
			event.EventType,
			event.Severity,
			event.Description,
			event.Source,
			event.Context.IPAddress,
			event.Context.UserAgent,
			event.Context.Endpoint,
			event.Context.Method,
			event.Context.RequestID,
			metadata,
			event.Resolved,
			event.ResolutionNotes,
			event.CreatedAt,
		).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert audit event sql: %w", err)
	}

	n, err := r.execCount(ctx, stmt, args, "insert audit event")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns a user's events inside the filter window, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := r.builder.
		Select(auditColumns...).
		From(auditTable).
		Where(squirrel.Eq{"user_id": filter.UserID}).
		Where(squirrel.GtOrEq{"created_at": filter.Since}).
		OrderBy("created_at DESC")
	if filter.Severity != nil {
		query = query.Where(squirrel.Eq{"severity": *filter.Severity})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// CountByType counts a user's events of one type since the supplied moment.
func (r *AuditRepository) CountByType(ctx context.Context, userID string, eventType domain.AuditEventType, since time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("count(*)").
		From(auditTable).
		Where(squirrel.Eq{"user_id": userID, "event_type": eventType}).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count audit events sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Resolve sets the only mutable fields of an event owned by userID.
func (r *AuditRepository) Resolve(ctx context.Context, userID, eventID, notes string) error {
	stmt, args, err := r.builder.Update(auditTable).
		Set("resolved", true).
		Set("resolution_notes", notes).
		Where(squirrel.Eq{"id": eventID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build resolve audit event sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "resolve audit event")
}

// DeleteExpired applies each owner's retention months, falling back to the default
// for system events. Critical events additionally survive until criticalBefore.
func (r *AuditRepository) DeleteExpired(ctx context.Context, now time.Time, defaultRetentionMonths int, criticalBefore time.Time) (int64, error) {
	retentionCutoff := squirrel.Expr(
		`created_at < ?::timestamptz - make_interval(days => 30 * COALESCE(
			(SELECT p.data_retention_months FROM identity.privacy_settings p WHERE p.user_id = audit_events.user_id), ?))`,
		now, defaultRetentionMonths,
	)
	stmt, args, err := r.builder.Delete(auditTable).
		Where(retentionCutoff).
		Where(squirrel.Or{
			squirrel.NotEq{"severity": domain.SeverityCritical},
			squirrel.Lt{"created_at": criticalBefore},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired audit events sql: %w", err)
	}
	return r.execCount(ctx, stmt, args, "delete expired audit events")
}

func scanAuditEvent(row pgx.Row) (*domain.AuditEvent, error) {
	var (
		event    domain.AuditEvent
		metadata []byte
	)
	if err := row.Scan(
		&event.ID,
		&event.IdempotencyKey,
		&event.UserID,
		&event.EventType,
		&event.Severity,
		&event.Description,
		&event.Source,
		&event.Context.IPAddress,
		&event.Context.UserAgent,
		&event.Context.Endpoint,
		&event.Context.Method,
		&event.Context.RequestID,
		&metadata,
		&event.Resolved,
		&event.ResolutionNotes,
		&event.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	if err := unmarshalJSON(metadata, &event.Metadata); err != nil {
		return nil, fmt.Errorf("decode audit metadata: %w", err)
	}
	return &event, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}

var dataAccessColumns = []string{
	"id",
	"user_id",
	"data_type",
	"access_type",
	"accessed_by",
	"purpose",
	"legal_basis",
	"retention_days",
	"ip_address",
	"user_agent",
	"endpoint",
	"method",
	"request_id",
	"created_at",
}

// DataAccessRepository implements port.DataAccessRepository.
type DataAccessRepository struct {
	base
}

// NewDataAccessRepository wires the data-access event repository.
func NewDataAccessRepository(exec pgExecutor) *DataAccessRepository {
	return &DataAccessRepository{base: newBase(exec)}
}

// Insert appends a data-access event.
func (r *DataAccessRepository) Insert(ctx context.Context, event domain.DataAccessEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	stmt, args, err := r.builder.Insert(dataAccessTable).
		Columns(dataAccessColumns...).
		Values(
			event.ID,
			event.UserID,
			event.DataType,
			event.AccessType,
			event.AccessedBy,
			event.Purpose,
			event.LegalBasis,
			event.RetentionDays,
			event.Context.IPAddress,
			event.Context.UserAgent,
			event.Context.Endpoint,
			event.Context.Method,
			event.Context.RequestID,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert data access event sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert data access event")
	return err
}

// List returns a user's data-access events inside the filter window, newest first.
func (r *DataAccessRepository) List(ctx context.Context, filter domain.DataAccessFilter) ([]domain.DataAccessEvent, error) {
	query := r.builder.
		Select(dataAccessColumns...).
		From(dataAccessTable).
		Where(squirrel.Eq{"user_id": filter.UserID}).
		Where(squirrel.GtOrEq{"created_at": filter.Since}).
		OrderBy("created_at DESC")
	if filter.DataType != "" {
		query = query.Where(squirrel.Eq{"data_type": filter.DataType})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list data access events sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query data access events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.DataAccessEvent, 0)
	for rows.Next() {
		var e domain.DataAccessEvent
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.DataType,
			&e.AccessType,
			&e.AccessedBy,
			&e.Purpose,
			&e.LegalBasis,
			&e.RetentionDays,
			&e.Context.IPAddress,
			&e.Context.UserAgent,
			&e.Context.Endpoint,
			&e.Context.Method,
			&e.Context.RequestID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan data access event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data access events: %w", err)
	}
	return events, nil
}

// DeleteExpired removes events older than their own retention_days.
func (r *DataAccessRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(dataAccessTable).
		Where(squirrel.Expr("created_at < ?::timestamptz - make_interval(days => retention_days)", now)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired data access events sql: %w", err)
	}
	return r.execCount(ctx, stmt, args, "delete expired data access events")
}
