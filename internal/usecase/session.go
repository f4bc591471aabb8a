package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	// ErrSessionNotFound indicates that the requested session does not exist or is not live.
	ErrSessionNotFound = domain.NotFound("session")
)

// SessionService lists and revokes a user's live sessions.
type SessionService struct {
	sessions      port.SessionRepository
	invalidations port.InvalidationPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, invalidations port.InvalidationPublisher, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:      sessions,
		invalidations: invalidations,
		logger:        logger,
		now:           utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ListSessions returns the user's unexpired, unrevoked sessions, oldest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Validation("user_id", "is required")
	}
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession ends one of the user's own sessions.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sessions, err := s.ListSessions(ctx, userID)
	if err != nil {
		return err
	}
	owned := false
	for _, session := range sessions {
		if session.ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		return ErrSessionNotFound
	}

	now := s.now()
	if err := s.sessions.Revoke(ctx, sessionID, "user_revoked", now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}

	publishInvalidation(ctx, s.invalidations, s.logger, domain.Invalidation{
		UserID:     userID,
		Artifact:   domain.ArtifactToken,
		Reason:     "session_revoked",
		Source:     config.ServiceIdentity,
		OccurredAt: now,
	})
	return nil
}
