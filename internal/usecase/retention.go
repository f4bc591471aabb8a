package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
)

const defaultRetentionMonths = 24

// RetentionSweeper deletes audit and data-access rows past their retention,
// expired sessions and accounts deactivated beyond the grace period.
type RetentionSweeper struct {
	audits        port.AuditRepository
	dataAccess    port.DataAccessRepository
	sessions      port.SessionRepository
	users         port.UserRepository
	criticalYears int
	logger        *zap.Logger
	now           func() time.Time
}

// NewRetentionSweeper constructs a RetentionSweeper. criticalYears below 7 is raised to 7.
func NewRetentionSweeper(audits port.AuditRepository, dataAccess port.DataAccessRepository, sessions port.SessionRepository, users port.UserRepository, criticalYears int, logger *zap.Logger) *RetentionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if criticalYears < 7 {
		criticalYears = 7
	}
	return &RetentionSweeper{
		audits:        audits,
		dataAccess:    dataAccess,
		sessions:      sessions,
		users:         users,
		criticalYears: criticalYears,
		logger:        logger,
		now:           utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RetentionSweeper) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Sweep runs one retention pass. Each step runs even when an earlier one
// failed; the first error is returned.
func (s *RetentionSweeper) Sweep(ctx context.Context) (worker.Report, error) {
	now := s.now()
	report := worker.Report{}
	var firstErr error
	record := func(name string, n int64, err error) {
		if err != nil {
			s.logger.Error("retention step failed", zap.String("step", name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			return
		}
		report[name] = n
	}

	criticalBefore := now.AddDate(-s.criticalYears, 0, 0)
	if floor := now.Add(-domain.CriticalRetention); criticalBefore.After(floor) {
		criticalBefore = floor
	}
	n, err := s.audits.DeleteExpired(ctx, now, defaultRetentionMonths, criticalBefore)
	record("audit_events_deleted", n, err)

	n, err = s.dataAccess.DeleteExpired(ctx, now)
	record("data_access_events_deleted", n, err)

	n, err = s.sessions.DeleteExpired(ctx, now)
	record("sessions_deleted", n, err)

	n, err = s.users.DeleteDeactivatedBefore(ctx, now.Add(-domain.DeletionGracePeriod))
	record("users_deleted", n, err)

	return report, firstErr
}
