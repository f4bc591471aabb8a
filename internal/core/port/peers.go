package port

import (
	"context"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// TokenVerifier validates a bearer token against the identity service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domain.TokenVerification, error)
}

// ProfileSource fetches a user's profile from the identity service.
type ProfileSource interface {
	FetchProfile(ctx context.Context, userID, token string) (domain.UserProfileSnapshot, error)
}

// WardrobeSource fetches a user's wardrobe from the wardrobe service.
type WardrobeSource interface {
	FetchWardrobe(ctx context.Context, userID, token string) ([]domain.WardrobeSummary, error)
}

// ExportFragmentSource returns the slice of an export document a peer owns.
type ExportFragmentSource interface {
	FetchFragment(ctx context.Context, userID string) (domain.ExportFragment, error)
}
