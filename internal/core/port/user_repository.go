package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateProfile(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, deactivatedAt *time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	DeleteDeactivatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
