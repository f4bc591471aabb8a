package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	itemsTable           = "wardrobe.items"
	imageAnalysesTable   = "wardrobe.image_analyses"
	outfitsTable         = "wardrobe.outfits"
	collectionsTable     = "wardrobe.collections"
	collectionItemsTable = "wardrobe.collection_items"
)

var itemColumns = []string{
	"id",
	"user_id",
	"name",
	"category",
	"subcategory",
	"brand",
	"color_primary",
	"color_secondary",
	"image_url",
	"content_hash",
	"analysis_id",
	"size",
	"season",
	"occasion_tags",
	"wear_count",
	"last_worn",
	"favorite",
	"created_at",
	"updated_at",
}

// WardrobeItemRepository implements port.WardrobeItemRepository.
type WardrobeItemRepository struct {
	base
}

// NewWardrobeItemRepository wires the wardrobe item repository.
func NewWardrobeItemRepository(exec pgExecutor) *WardrobeItemRepository {
	return &WardrobeItemRepository{base: newBase(exec)}
}

// Create inserts an item.
func (r *WardrobeItemRepository) Create(ctx context.Context, item domain.WardrobeItem) error {
	tags, err := json.Marshal(nonNilStrings(item.OccasionTags))
	if err != nil {
		return fmt.Errorf("marshal occasion tags: %w", err)
	}
	stmt, args, err := r.builder.Insert(itemsTable).
		Columns(itemColumns...).
		Values(
			item.ID,
			item.UserID,
			item.Name,
			item.Category,
			item.Subcategory,
			item.Brand,
			item.ColorPrimary,
			item.ColorSecondary,
			item.ImageURL,
			item.ContentHash,
			item.AnalysisID,
			item.Size,
			item.Season,
			tags,
			item.WearCount,
			item.LastWorn,
			item.Favorite,
			item.CreatedAt,
			item.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert item sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert wardrobe item")
	return err
}

// Get loads an item owned by userID.
func (r *WardrobeItemRepository) Get(ctx context.Context, userID, id string) (*domain.WardrobeItem, error) {
	stmt, args, err := r.builder.
		Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select item sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func (r *WardrobeItemRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.WardrobeItem, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	item, err := scanItem(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan wardrobe item: %w", err)
	}
	return item, nil
}

// List returns the user's items, most recently added first.
func (r *WardrobeItemRepository) List(ctx context.Context, userID string, filter domain.ItemFilter) ([]domain.WardrobeItem, error) {
	query := r.builder.
		Select(itemColumns...).
		From(itemsTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC")
	if filter.Category != "" {
		query = query.Where(squirrel.Expr("lower(category) = lower(?)", filter.Category))
	}
	if filter.Color != "" {
		query = query.Where(squirrel.Or{
			squirrel.Expr("lower(color_primary) = lower(?)", filter.Color),
			squirrel.Expr("lower(color_secondary) = lower(?)", filter.Color),
		})
	}
	if filter.Favorite != nil {
		query = query.Where(squirrel.Eq{"favorite": *filter.Favorite})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list items sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query wardrobe items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.WardrobeItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wardrobe item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Update persists the editable attributes of an item.
func (r *WardrobeItemRepository) Update(ctx context.Context, item domain.WardrobeItem) error {
	tags, err := json.Marshal(nonNilStrings(item.OccasionTags))
	if err != nil {
		return fmt.Errorf("marshal occasion tags: %w", err)
	}
	stmt, args, err := r.builder.Update(itemsTable).
		SetMap(map[string]any{
			"name":            item.Name,
			"category":        item.Category,
			"subcategory":     item.Subcategory,
			"brand":           item.Brand,
			"color_primary":   item.ColorPrimary,
			"color_secondary": item.ColorSecondary,
			"size":            item.Size,
			"season":          item.Season,
			"occasion_tags":   tags,
			"favorite":        item.Favorite,
			"updated_at":      item.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": item.ID, "user_id": item.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update item sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update wardrobe item")
}

// Delete removes an item owned by userID.
func (r *WardrobeItemRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete(itemsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete item sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "delete wardrobe item")
}

// RecordWear increments wear_count in a single statement and returns the new state.
func (r *WardrobeItemRepository) RecordWear(ctx context.Context, userID, id string, at time.Time) (*domain.WardrobeItem, error) {
	stmt, args, err := r.builder.Update(itemsTable).
		Set("wear_count", squirrel.Expr("wear_count + 1")).
		Set("last_worn", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + joinColumns(itemColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build record wear sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

// CountOwned counts how many of ids belong to userID.
func (r *WardrobeItemRepository) CountOwned(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	stmt, args, err := r.builder.
		Select("count(*)").
		From(itemsTable).
		Where(squirrel.Eq{"user_id": userID, "id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count owned items sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count owned items: %w", err)
	}
	return count, nil
}

func scanItem(row pgx.Row) (*domain.WardrobeItem, error) {
	var (
		item domain.WardrobeItem
		tags []byte
	)
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Name,
		&item.Category,
		&item.Subcategory,
		&item.Brand,
		&item.ColorPrimary,
		&item.ColorSecondary,
		&item.ImageURL,
		&item.ContentHash,
		&item.AnalysisID,
		&item.Size,
		&item.Season,
		&tags,
		&item.WearCount,
		&item.LastWorn,
		&item.Favorite,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &item.OccasionTags); err != nil {
		return nil, fmt.Errorf("decode occasion tags: %w", err)
	}
	return &item, nil
}

var imageAnalysisColumns = []string{
	"id",
	"user_id",
	"content_hash",
	"image_url",
	"detected_category",
	"dominant_colors",
	"patterns",
	"style_tags",
	"confidence_score",
	"analysis_version",
	"created_at",
}

// ImageAnalysisRepository implements port.ImageAnalysisRepository.
type ImageAnalysisRepository struct {
	base
}

// NewImageAnalysisRepository wires the image analysis repository.
func NewImageAnalysisRepository(exec pgExecutor) *ImageAnalysisRepository {
	return &ImageAnalysisRepository{base: newBase(exec)}
}

// GetByHash loads a stored analysis for the user's image content.
func (r *ImageAnalysisRepository) GetByHash(ctx context.Context, userID, contentHash string) (*domain.ImageAnalysis, error) {
	stmt, args, err := r.builder.
		Select(imageAnalysisColumns...).
		From(imageAnalysesTable).
		Where(squirrel.Eq{"user_id": userID, "content_hash": contentHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select image analysis sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

// Create inserts an analysis. A concurrent insert for the same content loses the
// race quietly and receives the stored row instead.
func (r *ImageAnalysisRepository) Create(ctx context.Context, a domain.ImageAnalysis) (*domain.ImageAnalysis, bool, error) {
	var encoded [3][]byte
	for i, list := range [][]string{a.DominantColors, a.Patterns, a.StyleTags} {
		raw, err := json.Marshal(nonNilStrings(list))
		if err != nil {
			return nil, false, fmt.Errorf("marshal image analysis list: %w", err)
		}
		encoded[i] = raw
	}
	stmt, args, err := r.builder.Insert(imageAnalysesTable).
		Columns(imageAnalysisColumns...).
		Values(a.ID, a.UserID, a.ContentHash, a.ImageURL, a.DetectedCategory, encoded[0], encoded[1], encoded[2], a.ConfidenceScore, a.AnalysisVersion, a.CreatedAt).
		Suffix("ON CONFLICT (user_id, content_hash) DO NOTHING RETURNING " + joinColumns(imageAnalysisColumns)).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build insert image analysis sql: %w", err)
	}

	created, err := r.queryOne(ctx, stmt, args)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	existing, err := r.GetByHash(ctx, a.UserID, a.ContentHash)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ImageAnalysisRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.ImageAnalysis, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var (
		a                           domain.ImageAnalysis
		colors, patterns, styleTags []byte
	)
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(
		&a.ID,
		&a.UserID,
		&a.ContentHash,
		&a.ImageURL,
		&a.DetectedCategory,
		&colors,
		&patterns,
		&styleTags,
		&a.ConfidenceScore,
		&a.AnalysisVersion,
		&a.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan image analysis: %w", err)
	}
	for raw, dst := range map[*[]byte]*[]string{&colors: &a.DominantColors, &patterns: &a.Patterns, &styleTags: &a.StyleTags} {
		if err := unmarshalJSON(*raw, dst); err != nil {
			return nil, fmt.Errorf("decode image analysis list: %w", err)
		}
	}
	return &a, nil
}

var outfitColumns = []string{"id", "user_id", "name", "occasion", "season", "slots", "created_at", "updated_at"}

// OutfitRepository implements port.OutfitRepository.
type OutfitRepository struct {
	base
}

// NewOutfitRepository wires the outfit repository.
func NewOutfitRepository(exec pgExecutor) *OutfitRepository {
	return &OutfitRepository{base: newBase(exec)}
}

// Create stores an outfit.
func (r *OutfitRepository) Create(ctx context.Context, o domain.OutfitComposition) error {
	slots, err := json.Marshal(o.Slots)
	if err != nil {
		return fmt.Errorf("marshal outfit slots: %w", err)
	}
	stmt, args, err := r.builder.Insert(outfitsTable).
		Columns(outfitColumns...).
		Values(o.ID, o.UserID, o.Name, o.Occasion, o.Season, slots, o.CreatedAt, o.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert outfit sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert outfit")
	return err
}

// Get loads an outfit owned by userID.
func (r *OutfitRepository) Get(ctx context.Context, userID, id string) (*domain.OutfitComposition, error) {
	outfits, err := r.list(ctx, squirrel.Eq{"id": id, "user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(outfits) == 0 {
		return nil, repository.ErrNotFound
	}
	return &outfits[0], nil
}

// List returns the user's outfits, newest first.
func (r *OutfitRepository) List(ctx context.Context, userID string) ([]domain.OutfitComposition, error) {
	return r.list(ctx, squirrel.Eq{"user_id": userID})
}

func (r *OutfitRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.OutfitComposition, error) {
	stmt, args, err := r.builder.
		Select(outfitColumns...).
		From(outfitsTable).
		Where(where).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list outfits sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query outfits: %w", err)
	}
	defer rows.Close()

	outfits := make([]domain.OutfitComposition, 0)
	for rows.Next() {
		var (
			o     domain.OutfitComposition
			slots []byte
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Name, &o.Occasion, &o.Season, &slots, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outfit: %w", err)
		}
		if err := unmarshalJSON(slots, &o.Slots); err != nil {
			return nil, fmt.Errorf("decode outfit slots: %w", err)
		}
		outfits = append(outfits, o)
	}
	return outfits, rows.Err()
}

// Delete removes an outfit owned by userID.
func (r *OutfitRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete(outfitsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete outfit sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "delete outfit")
}

var collectionColumns = []string{"id", "user_id", "name", "description", "created_at", "updated_at"}

// CollectionRepository implements port.CollectionRepository.
type CollectionRepository struct {
	base
}

// NewCollectionRepository wires the collection repository.
func NewCollectionRepository(exec pgExecutor) *CollectionRepository {
	return &CollectionRepository{base: newBase(exec)}
}

// Create stores a collection header.
func (r *CollectionRepository) Create(ctx context.Context, c domain.Collection) error {
	stmt, args, err := r.builder.Insert(collectionsTable).
		Columns(collectionColumns...).
		Values(c.ID, c.UserID, c.Name, c.Description, c.CreatedAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert collection sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert collection")
	return err
}

// Get loads a collection with its item ids.
func (r *CollectionRepository) Get(ctx context.Context, userID, id string) (*domain.Collection, error) {
	collections, err := r.list(ctx, squirrel.Eq{"c.id": id, "c.user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, repository.ErrNotFound
	}
	return &collections[0], nil
}

// List returns the user's collections with their item ids.
func (r *CollectionRepository) List(ctx context.Context, userID string) ([]domain.Collection, error) {
	return r.list(ctx, squirrel.Eq{"c.user_id": userID})
}

func (r *CollectionRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.Collection, error) {
	stmt, args, err := r.builder.
		Select(
			"c.id", "c.user_id", "c.name", "c.description", "c.created_at", "c.updated_at",
			"COALESCE(array_agg(ci.item_id ORDER BY ci.added_at) FILTER (WHERE ci.item_id IS NOT NULL), '{}')",
		).
		From(collectionsTable + " c").
		LeftJoin(collectionItemsTable + " ci ON ci.collection_id = c.id").
		Where(where).
		GroupBy("c.id").
		OrderBy("c.created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list collections sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	collections := make([]domain.Collection, 0)
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt, &c.ItemIDs); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// AddItem links an item to a collection; adding it twice is a no-op.
func (r *CollectionRepository) AddItem(ctx context.Context, collectionID, itemID string, at time.Time) error {
	stmt, args, err := r.builder.Insert(collectionItemsTable).
		Columns("collection_id", "item_id", "added_at").
		Values(collectionID, itemID, at).
		Suffix("ON CONFLICT (collection_id, item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build add collection item sql: %w", err)
	}
	if _, err := r.execCount(ctx, stmt, args, "add collection item"); err != nil {
		return err
	}
	return r.touch(ctx, collectionID, at)
}

// RemoveItem unlinks an item from a collection.
func (r *CollectionRepository) RemoveItem(ctx context.Context, collectionID, itemID string) error {
	stmt, args, err := r.builder.Delete(collectionItemsTable).
		Where(squirrel.Eq{"collection_id": collectionID, "item_id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove collection item sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "remove collection item")
}

func (r *CollectionRepository) touch(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(collectionsTable).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch collection sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "touch collection")
}

// Delete removes a collection owned by userID; its links cascade.
func (r *CollectionRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete(collectionsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete collection sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "delete collection")
}
