package port

import (
	"context"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// StyleProfileRepository persists learned style profiles.
type StyleProfileRepository interface {
	GetOrCreate(ctx context.Context, defaults domain.StyleProfile) (*domain.StyleProfile, error)
	// GetForUpdate locks the row for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, userID string) (*domain.StyleProfile, error)
	Update(ctx context.Context, profile domain.StyleProfile) error
	ListPage(ctx context.Context, afterUserID string, limit int) ([]domain.StyleProfile, error)
	Export(ctx context.Context, userID string) (*domain.StyleProfile, error)
}

// StyleAnalysisRepository persists inferencer results.
type StyleAnalysisRepository interface {
	Create(ctx context.Context, analysis domain.StyleAnalysis) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.StyleAnalysis, error)
}

// SuggestionRepository persists generated outfit suggestions.
type SuggestionRepository interface {
	Create(ctx context.Context, suggestion domain.OutfitSuggestion) error
	Get(ctx context.Context, userID, id string) (*domain.OutfitSuggestion, error)
}

// FeedbackRepository persists suggestion ratings.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback domain.Feedback) error
}
