package usecase

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	// ErrItemNotFound indicates the wardrobe item does not exist for the user.
	ErrItemNotFound = domain.NotFound("item")
	// ErrOutfitNotFound indicates the outfit does not exist for the user.
	ErrOutfitNotFound = domain.NotFound("outfit")
	// ErrCollectionNotFound indicates the collection does not exist for the user.
	ErrCollectionNotFound = domain.NotFound("collection")
	// ErrOutfitItemsNotOwned indicates an outfit references items the user does not own.
	ErrOutfitItemsNotOwned = domain.NewError(domain.KindValidation, "outfit_items_not_owned", "every outfit item must belong to your wardrobe")
)

const (
	maxImageBytes      = 10 << 20
	defaultSimilarSize = 10
)

// ItemInput is the payload for a new wardrobe item. The image is either inline
// base64 or a URL with an optional precomputed SHA-256.
type ItemInput struct {
	Name           string
	Category       string
	Subcategory    string
	Brand          string
	ColorPrimary   string
	ColorSecondary string
	Size           string
	Season         string
	OccasionTags   []string
	Favorite       bool
	ImageBase64    string
	ImageURL       string
	ImageSHA256    string
}

// ItemResult is a created item plus its image analysis, if any.
type ItemResult struct {
	Item           domain.WardrobeItem
	Analysis       *domain.ImageAnalysis
	AnalysisReused bool
}

// OutfitInput is the payload for a new outfit.
type OutfitInput struct {
	Name     string
	Occasion string
	Season   string
	Slots    domain.OutfitSlots
}

// WardrobeService manages items, outfits and collections.
type WardrobeService struct {
	items         port.WardrobeItemRepository
	analyses      port.ImageAnalysisRepository
	outfits       port.OutfitRepository
	collections   port.CollectionRepository
	analyzer      port.ImageAnalyzer
	invalidations port.InvalidationPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewWardrobeService constructs a WardrobeService.
func NewWardrobeService(
	items port.WardrobeItemRepository,
	analyses port.ImageAnalysisRepository,
	outfits port.OutfitRepository,
	collections port.CollectionRepository,
	analyzer port.ImageAnalyzer,
	logger *zap.Logger,
) *WardrobeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WardrobeService{
		items:       items,
		analyses:    analyses,
		outfits:     outfits,
		collections: collections,
		analyzer:    analyzer,
		logger:      logger,
		now:         utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *WardrobeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithInvalidations announces wardrobe changes to sibling caches.
func (s *WardrobeService) WithInvalidations(pub port.InvalidationPublisher) *WardrobeService {
	s.invalidations = pub
	return s
}

func (s *WardrobeService) changed(ctx context.Context, userID, reason string) {
	publishInvalidation(ctx, s.invalidations, s.logger, domain.Invalidation{
		UserID:     userID,
		Artifact:   domain.ArtifactWardrobe,
		Reason:     reason,
		Source:     config.ServiceWardrobe,
		OccurredAt: s.now(),
	})
}

// CreateItem stores an item. An image whose content hash was already analyzed
// for the user reuses that analysis instead of creating a second one.
func (s *WardrobeService) CreateItem(ctx context.Context, userID string, in ItemInput) (*ItemResult, error) {
	image, hash, err := decodeItemImage(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := domain.WardrobeItem{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           strings.TrimSpace(in.Name),
		Category:       strings.ToLower(strings.TrimSpace(in.Category)),
		Subcategory:    strings.TrimSpace(in.Subcategory),
		Brand:          strings.TrimSpace(in.Brand),
		ColorPrimary:   strings.ToLower(strings.TrimSpace(in.ColorPrimary)),
		ColorSecondary: strings.ToLower(strings.TrimSpace(in.ColorSecondary)),
		ImageURL:       strings.TrimSpace(in.ImageURL),
		ContentHash:    hash,
		Size:           strings.TrimSpace(in.Size),
		Season:         strings.TrimSpace(in.Season),
		OccasionTags:   in.OccasionTags,
		Favorite:       in.Favorite,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if item.OccasionTags == nil {
		item.OccasionTags = []string{}
	}

	result := &ItemResult{}
	if hash != "" {
		analysis, reused, err := s.analysisFor(ctx, userID, hash, item.ImageURL, image)
		if err != nil {
			return nil, err
		}
		if analysis != nil {
			result.Analysis = analysis
			result.AnalysisReused = reused
			item.AnalysisID = &analysis.ID
			if item.Category == "" {
				item.Category = analysis.DetectedCategory
			}
			if item.ColorPrimary == "" && len(analysis.DominantColors) > 0 {
				item.ColorPrimary = analysis.DominantColors[0]
			}
		}
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.changed(ctx, userID, "item_created")
	result.Item = item
	return result, nil
}

// analysisFor returns the stored analysis for hash, creating one when image
// bytes are available. A URL-only item with an unknown hash gets no analysis.
func (s *WardrobeService) analysisFor(ctx context.Context, userID, hash, imageURL string, image []byte) (*domain.ImageAnalysis, bool, error) {
	existing, err := s.analyses.GetByHash(ctx, userID, hash)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup image analysis: %w", err)
	}
	if len(image) == 0 || s.analyzer == nil {
		return nil, false, nil
	}

	features, err := s.analyzer.Analyze(ctx, image, hash)
	if err != nil {
		return nil, false, fmt.Errorf("analyze image: %w", err)
	}
	stored, created, err := s.analyses.Create(ctx, domain.ImageAnalysis{
		ID:               uuid.NewString(),
		UserID:           userID,
		ContentHash:      hash,
		ImageURL:         imageURL,
		DetectedCategory: features.Category,
		DominantColors:   features.Colors,
		Patterns:         features.Patterns,
		StyleTags:        features.StyleTags,
		ConfidenceScore:  features.Confidence,
		AnalysisVersion:  features.Version,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("store image analysis: %w", err)
	}
	return stored, !created, nil
}

func decodeItemImage(in ItemInput) ([]byte, string, error) {
	if raw := strings.TrimSpace(in.ImageBase64); raw != "" {
		if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
			raw = raw[i+len(";base64,"):]
		}
		image, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, "", domain.Validation("image_base64", "is not valid base64")
		}
		if len(image) == 0 {
			return nil, "", domain.Validation("image_base64", "is empty")
		}
		if len(image) > maxImageBytes {
			return nil, "", domain.Validation("image_base64", "must be at most %d bytes", maxImageBytes)
		}
		return image, domain.ContentHash(image), nil
	}
	if sum := strings.ToLower(strings.TrimSpace(in.ImageSHA256)); sum != "" {
		if decoded, err := hex.DecodeString(sum); err != nil || len(decoded) != 32 {
			return nil, "", domain.Validation("image_sha256", "must be a hex SHA-256 digest")
		}
		return nil, sum, nil
	}
	return nil, "", nil
}

// GetItem returns one of the user's items.
func (s *WardrobeService) GetItem(ctx context.Context, userID, id string) (*domain.WardrobeItem, error) {
	item, err := s.items.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns the user's items matching filter.
func (s *WardrobeService) ListItems(ctx context.Context, userID string, filter domain.ItemFilter) ([]domain.WardrobeItem, error) {
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	filter.Color = strings.ToLower(strings.TrimSpace(filter.Color))
	items, err := s.items.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpdateItem applies a partial update.
func (s *WardrobeService) UpdateItem(ctx context.Context, userID, id string, patch domain.ItemPatch) (*domain.WardrobeItem, error) {
	item, err := s.GetItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(item)
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.UpdatedAt = s.now()
	if err := s.items.Update(ctx, *item); err != nil {
		return nil, notFoundAs(err, "item")
	}
	s.changed(ctx, userID, "item_updated")
	return item, nil
}

// DeleteItem removes an item.
func (s *WardrobeService) DeleteItem(ctx context.Context, userID, id string) error {
	if err := s.items.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("delete item: %w", err)
	}
	s.changed(ctx, userID, "item_deleted")
	return nil
}

// WearItem increments the wear count and stamps last-worn.
func (s *WardrobeService) WearItem(ctx context.Context, userID, id string) (*domain.WardrobeItem, error) {
	item, err := s.items.RecordWear(ctx, userID, id, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("record wear: %w", err)
	}
	s.changed(ctx, userID, "item_worn")
	return item, nil
}

// ToggleFavorite flips the favorite flag.
func (s *WardrobeService) ToggleFavorite(ctx context.Context, userID, id string) (*domain.WardrobeItem, error) {
	item, err := s.GetItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	fav := !item.Favorite
	return s.UpdateItem(ctx, userID, id, domain.ItemPatch{Favorite: &fav})
}

// SimilarItems ranks the user's other items by category and color overlap.
func (s *WardrobeService) SimilarItems(ctx context.Context, userID, id string, limit int) ([]domain.WardrobeItem, error) {
	target, err := s.GetItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	all, err := s.items.List(ctx, userID, domain.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return domain.RankSimilar(*target, all, pageLimit(limit, defaultSimilarSize, 50)), nil
}

// Stats summarizes the wardrobe.
func (s *WardrobeService) Stats(ctx context.Context, userID string) (domain.WardrobeStats, error) {
	items, err := s.items.List(ctx, userID, domain.ItemFilter{})
	if err != nil {
		return domain.WardrobeStats{}, fmt.Errorf("list items: %w", err)
	}
	return domain.ComputeWardrobeStats(items), nil
}

// Summaries returns the compact item view sibling services read.
func (s *WardrobeService) Summaries(ctx context.Context, userID string, limit int) ([]domain.WardrobeSummary, error) {
	items, err := s.items.List(ctx, userID, domain.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	limit = pageLimit(limit, 200, 500)
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]domain.WardrobeSummary, 0, len(items))
	for _, item := range items {
		out = append(out, item.Summary())
	}
	return out, nil
}

// CreateOutfit stores an outfit after checking the slot rule and item ownership.
func (s *WardrobeService) CreateOutfit(ctx context.Context, userID string, in OutfitInput) (*domain.OutfitComposition, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.Validation("name", "is required")
	}
	if err := in.Slots.Validate(); err != nil {
		return nil, err
	}
	ids := in.Slots.ItemIDs()
	owned, err := s.items.CountOwned(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("count owned items: %w", err)
	}
	if owned != len(ids) {
		return nil, ErrOutfitItemsNotOwned
	}

	now := s.now()
	outfit := domain.OutfitComposition{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Occasion:  strings.TrimSpace(in.Occasion),
		Season:    strings.TrimSpace(in.Season),
		Slots:     in.Slots,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.outfits.Create(ctx, outfit); err != nil {
		return nil, fmt.Errorf("create outfit: %w", err)
	}
	s.changed(ctx, userID, "outfit_created")
	return &outfit, nil
}

// GetOutfit returns one of the user's outfits.
func (s *WardrobeService) GetOutfit(ctx context.Context, userID, id string) (*domain.OutfitComposition, error) {
	outfit, err := s.outfits.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOutfitNotFound
		}
		return nil, fmt.Errorf("get outfit: %w", err)
	}
	return outfit, nil
}

// ListOutfits returns the user's outfits.
func (s *WardrobeService) ListOutfits(ctx context.Context, userID string) ([]domain.OutfitComposition, error) {
	outfits, err := s.outfits.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list outfits: %w", err)
	}
	return outfits, nil
}

// DeleteOutfit removes an outfit.
func (s *WardrobeService) DeleteOutfit(ctx context.Context, userID, id string) error {
	if err := s.outfits.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOutfitNotFound
		}
		return fmt.Errorf("delete outfit: %w", err)
	}
	s.changed(ctx, userID, "outfit_deleted")
	return nil
}

// CreateCollection stores an empty collection.
func (s *WardrobeService) CreateCollection(ctx context.Context, userID, name, description string) (*domain.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validation("name", "is required")
	}
	now := s.now()
	collection := domain.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
		ItemIDs:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.collections.Create(ctx, collection); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.changed(ctx, userID, "collection_created")
	return &collection, nil
}

// ListCollections returns the user's collections.
func (s *WardrobeService) ListCollections(ctx context.Context, userID string) ([]domain.Collection, error) {
	collections, err := s.collections.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return collections, nil
}

func (s *WardrobeService) getCollection(ctx context.Context, userID, id string) (*domain.Collection, error) {
	collection, err := s.collections.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return collection, nil
}

// AddToCollection links one of the user's items to one of their collections. Re-adding is a no-op.
func (s *WardrobeService) AddToCollection(ctx context.Context, userID, collectionID, itemID string) error {
	if _, err := s.getCollection(ctx, userID, collectionID); err != nil {
		return err
	}
	if _, err := s.GetItem(ctx, userID, itemID); err != nil {
		return err
	}
	if err := s.collections.AddItem(ctx, collectionID, itemID, s.now()); err != nil {
		return fmt.Errorf("add collection item: %w", err)
	}
	s.changed(ctx, userID, "collection_updated")
	return nil
}

// RemoveFromCollection unlinks an item.
func (s *WardrobeService) RemoveFromCollection(ctx context.Context, userID, collectionID, itemID string) error {
	if _, err := s.getCollection(ctx, userID, collectionID); err != nil {
		return err
	}
	if err := s.collections.RemoveItem(ctx, collectionID, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("remove collection item: %w", err)
	}
	s.changed(ctx, userID, "collection_updated")
	return nil
}

// DeleteCollection removes a collection; its items stay in the wardrobe.
func (s *WardrobeService) DeleteCollection(ctx context.Context, userID, id string) error {
	if err := s.collections.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("delete collection: %w", err)
	}
	s.changed(ctx, userID, "collection_deleted")
	return nil
}

// ExportFragment returns the wardrobe sections of a data export.
func (s *WardrobeService) ExportFragment(ctx context.Context, userID string) (domain.ExportFragment, error) {
	var fragment domain.ExportFragment
	items, err := s.items.List(ctx, userID, domain.ItemFilter{})
	if err != nil {
		return fragment, fmt.Errorf("export items: %w", err)
	}
	for _, item := range items {
		row := map[string]any{
			"id":              item.ID,
			"name":            item.Name,
			"category":        item.Category,
			"subcategory":     item.Subcategory,
			"brand":           item.Brand,
			"color_primary":   item.ColorPrimary,
			"color_secondary": item.ColorSecondary,
			"image_url":       item.ImageURL,
			"size":            item.Size,
			"season":          item.Season,
			"occasion_tags":   item.OccasionTags,
			"wear_count":      item.WearCount,
			"favorite":        item.Favorite,
			"created_at":      item.CreatedAt,
		}
		if item.LastWorn != nil {
			row["last_worn"] = *item.LastWorn
		}
		fragment.WardrobeItems = append(fragment.WardrobeItems, row)
	}

	outfits, err := s.outfits.List(ctx, userID)
	if err != nil {
		return fragment, fmt.Errorf("export outfits: %w", err)
	}
	for _, o := range outfits {
		fragment.OutfitHistory = append(fragment.OutfitHistory, map[string]any{
			"id":         o.ID,
			"name":       o.Name,
			"occasion":   o.Occasion,
			"season":     o.Season,
			"items":      o.Slots,
			"created_at": o.CreatedAt,
		})
	}
	return fragment, nil
}
