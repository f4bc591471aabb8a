package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// SessionRepository stores issued bearer tokens by hash.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error)
	ListActiveByUser(ctx context.Context, userID string, at time.Time) ([]domain.Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
