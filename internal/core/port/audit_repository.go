package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// AuditRepository is the append-only store of audit events.
type AuditRepository interface {
	// Insert stores the event unless one with the same idempotency key exists.
	Insert(ctx context.Context, event domain.AuditEvent) (bool, error)
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
	CountByType(ctx context.Context, userID string, eventType domain.AuditEventType, since time.Time) (int, error)
	Resolve(ctx context.Context, userID, eventID, notes string) error
	// DeleteExpired removes non-critical events older than each owner's retention
	// and critical events older than criticalBefore.
	DeleteExpired(ctx context.Context, now time.Time, defaultRetentionMonths int, criticalBefore time.Time) (int64, error)
}

// DataAccessRepository is the append-only store of data-access events.
type DataAccessRepository interface {
	Insert(ctx context.Context, event domain.DataAccessEvent) error
	List(ctx context.Context, filter domain.DataAccessFilter) ([]domain.DataAccessEvent, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
