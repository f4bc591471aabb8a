package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// WardrobeItemRepository persists wardrobe items.
type WardrobeItemRepository interface {
	Create(ctx context.Context, item domain.WardrobeItem) error
	Get(ctx context.Context, userID, id string) (*domain.WardrobeItem, error)
	List(ctx context.Context, userID string, filter domain.ItemFilter) ([]domain.WardrobeItem, error)
	Update(ctx context.Context, item domain.WardrobeItem) error
	Delete(ctx context.Context, userID, id string) error
	RecordWear(ctx context.Context, userID, id string, at time.Time) (*domain.WardrobeItem, error)
	CountOwned(ctx context.Context, userID string, ids []string) (int, error)
}

// ImageAnalysisRepository persists analyses keyed by (user, content hash).
type ImageAnalysisRepository interface {
	GetByHash(ctx context.Context, userID, contentHash string) (*domain.ImageAnalysis, error)
	// Create inserts the analysis; on a concurrent duplicate it returns the stored row and false.
	Create(ctx context.Context, analysis domain.ImageAnalysis) (*domain.ImageAnalysis, bool, error)
}

// OutfitRepository persists outfit compositions.
type OutfitRepository interface {
	Create(ctx context.Context, outfit domain.OutfitComposition) error
	Get(ctx context.Context, userID, id string) (*domain.OutfitComposition, error)
	List(ctx context.Context, userID string) ([]domain.OutfitComposition, error)
	Delete(ctx context.Context, userID, id string) error
}

// CollectionRepository persists item collections.
type CollectionRepository interface {
	Create(ctx context.Context, collection domain.Collection) error
	Get(ctx context.Context, userID, id string) (*domain.Collection, error)
	List(ctx context.Context, userID string) ([]domain.Collection, error)
	AddItem(ctx context.Context, collectionID, itemID string, at time.Time) error
	RemoveItem(ctx context.Context, collectionID, itemID string) error
	Delete(ctx context.Context, userID, id string) error
}
