package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

var (
	// ErrConfirmationMismatch indicates the deletion phrase was not typed exactly.
	ErrConfirmationMismatch = domain.NewError(domain.KindValidation, "confirmation_mismatch",
		fmt.Sprintf("confirmation must be exactly %q", domain.DeletionConfirmationPhrase))
	// ErrAccountInactive indicates the account is already deactivated.
	ErrAccountInactive = domain.NewError(domain.KindConflict, "account_inactive", "account is already deactivated")
)

// DeactivationResult tells the client until when the account can be reactivated.
type DeactivationResult struct {
	DeactivatedAt    time.Time
	ReactivableUntil time.Time
	SessionsRevoked  int
}

// AccountService deactivates accounts. Hard deletion is left to the retention sweeper.
type AccountService struct {
	users         port.UserRepository
	sessions      port.SessionRepository
	audit         *AuditService
	invalidations port.InvalidationPublisher
	tx            port.Transactor
	logger        *zap.Logger
	now           func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(users port.UserRepository, sessions port.SessionRepository, audit *AuditService, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{users: users, sessions: sessions, audit: audit, logger: logger, now: utcNow}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AccountService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes deactivation atomic with session revocation and its audit event.
func (s *AccountService) WithTransactor(tx port.Transactor) *AccountService {
	s.tx = tx
	return s
}

// WithInvalidations announces the revoked tokens and profile.
func (s *AccountService) WithInvalidations(pub port.InvalidationPublisher) *AccountService {
	s.invalidations = pub
	return s
}

// Deactivate flips the account inactive and revokes every session.
func (s *AccountService) Deactivate(ctx context.Context, userID, confirmation string, rc domain.RequestContext) (*DeactivationResult, error) {
	if confirmation != domain.DeletionConfirmationPhrase {
		return nil, ErrConfirmationMismatch
	}

	now := s.now()
	result := &DeactivationResult{DeactivatedAt: now, ReactivableUntil: now.Add(domain.DeletionGracePeriod)}
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return notFoundAs(err, "user")
		}
		if !user.IsActive {
			return ErrAccountInactive
		}
		if err := s.users.SetActive(ctx, userID, false, &now); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		revoked, err := s.sessions.RevokeAllForUser(ctx, userID, revokeReasonDeactivated, now)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		result.SessionsRevoked = revoked
		return s.audit.emit(ctx, &userID, domain.EventAccountDeletion, domain.SeverityCritical, "account deactivated", rc,
			map[string]any{"reactivable_until": result.ReactivableUntil.Format(time.RFC3339), "sessions_revoked": revoked})
	})
	if err != nil {
		return nil, err
	}

	for _, artifact := range []domain.Artifact{domain.ArtifactToken, domain.ArtifactProfile} {
		publishInvalidation(ctx, s.invalidations, s.logger, domain.Invalidation{
			UserID:     userID,
			Artifact:   artifact,
			Reason:     revokeReasonDeactivated,
			Source:     config.ServiceIdentity,
			OccurredAt: now,
		})
	}
	s.logger.Info("account deactivated", zap.String("user_id", userID))
	return result, nil
}
