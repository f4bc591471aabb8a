package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const (
	styleProfilesTable = "styling.style_profiles"
	analysesTable      = "styling.style_analyses"
	suggestionsTable   = "styling.outfit_suggestions"
	feedbackTable      = "styling.feedback"
)

var styleProfileColumns = []string{
	"id",
	"user_id",
	"primary_style",
	"preferred_colors",
	"avoided_colors",
	"preferred_categories",
	"avoided_categories",
	"confidence_score",
	"learning_data_points",
	"auto_learn_enabled",
	"created_at",
	"updated_at",
}

// StyleProfileRepository implements port.StyleProfileRepository.
type StyleProfileRepository struct {
	base
}

// NewStyleProfileRepository wires the style profile repository.
func NewStyleProfileRepository(exec pgExecutor) *StyleProfileRepository {
	return &StyleProfileRepository{base: newBase(exec)}
}

// GetOrCreate returns the user's profile, inserting defaults on first access.
func (r *StyleProfileRepository) GetOrCreate(ctx context.Context, defaults domain.StyleProfile) (*domain.StyleProfile, error) {
	if defaults.ID == "" {
		defaults.ID = uuid.NewString()
	}
	values, err := styleProfileValues(defaults)
	if err != nil {
		return nil, err
	}
	stmt, args, err := r.builder.Insert(styleProfilesTable).
		Columns(styleProfileColumns...).
		Values(values...).
		Suffix("ON CONFLICT (user_id) DO NOTHING RETURNING " + joinColumns(styleProfileColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert style profile sql: %w", err)
	}

	created, err := r.queryOne(ctx, stmt, args)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return r.selectByUser(ctx, defaults.UserID, "")
}

// GetForUpdate locks the user's profile row inside the surrounding transaction.
func (r *StyleProfileRepository) GetForUpdate(ctx context.Context, userID string) (*domain.StyleProfile, error) {
	return r.selectByUser(ctx, userID, "FOR UPDATE")
}

// Export returns the profile without creating one.
func (r *StyleProfileRepository) Export(ctx context.Context, userID string) (*domain.StyleProfile, error) {
	return r.selectByUser(ctx, userID, "")
}

func (r *StyleProfileRepository) selectByUser(ctx context.Context, userID, suffix string) (*domain.StyleProfile, error) {
	query := r.builder.
		Select(styleProfileColumns...).
		From(styleProfilesTable).
		Where(squirrel.Eq{"user_id": userID})
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select style profile sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func (r *StyleProfileRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.StyleProfile, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	profile, err := scanStyleProfile(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan style profile: %w", err)
	}
	return profile, nil
}

// Update persists the learned state of a profile.
func (r *StyleProfileRepository) Update(ctx context.Context, p domain.StyleProfile) error {
	maps, err := marshalWeightMaps(p)
	if err != nil {
		return err
	}
	stmt, args, err := r.builder.Update(styleProfilesTable).
		SetMap(map[string]any{
			"primary_style":        p.PrimaryStyle,
			"preferred_colors":     maps[0],
			"avoided_colors":       maps[1],
			"preferred_categories": maps[2],
			"avoided_categories":   maps[3],
			"confidence_score":     p.ConfidenceScore,
			"learning_data_points": p.LearningDataPoints,
			"auto_learn_enabled":   p.AutoLearnEnabled,
			"updated_at":           p.UpdatedAt,
		}).
		Where(squirrel.Eq{"user_id": p.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update style profile sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "update style profile")
}

// ListPage returns profiles ordered by user id for batch jobs.
func (r *StyleProfileRepository) ListPage(ctx context.Context, afterUserID string, limit int) ([]domain.StyleProfile, error) {
	stmt, args, err := r.builder.
		Select(styleProfileColumns...).
		From(styleProfilesTable).
		Where(squirrel.Gt{"user_id": afterUserID}).
		OrderBy("user_id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list style profiles sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query style profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.StyleProfile
	for rows.Next() {
		p, err := scanStyleProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan style profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func styleProfileValues(p domain.StyleProfile) ([]any, error) {
	maps, err := marshalWeightMaps(p)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID,
		p.UserID,
		p.PrimaryStyle,
		maps[0],
		maps[1],
		maps[2],
		maps[3],
		p.ConfidenceScore,
		p.LearningDataPoints,
		p.AutoLearnEnabled,
		p.CreatedAt,
		p.UpdatedAt,
	}, nil
}

func marshalWeightMaps(p domain.StyleProfile) ([4][]byte, error) {
	var out [4][]byte
	for i, m := range []map[string]float64{p.PreferredColors, p.AvoidedColors, p.PreferredCategories, p.AvoidedCategories} {
		if m == nil {
			m = map[string]float64{}
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return out, fmt.Errorf("marshal weight map: %w", err)
		}
		out[i] = raw
	}
	return out, nil
}

func scanStyleProfile(row pgx.Row) (*domain.StyleProfile, error) {
	var (
		p                     domain.StyleProfile
		prefColors, avoColors []byte
		prefCats, avoCats     []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PrimaryStyle,
		&prefColors,
		&avoColors,
		&prefCats,
		&avoCats,
		&p.ConfidenceScore,
		&p.LearningDataPoints,
		&p.AutoLearnEnabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.PreferredColors = map[string]float64{}
	p.AvoidedColors = map[string]float64{}
	p.PreferredCategories = map[string]float64{}
	p.AvoidedCategories = map[string]float64{}
	for raw, dst := range map[*[]byte]*map[string]float64{
		&prefColors: &p.PreferredColors,
		&avoColors:  &p.AvoidedColors,
		&prefCats:   &p.PreferredCategories,
		&avoCats:    &p.AvoidedCategories,
	} {
		if err := unmarshalJSON(*raw, dst); err != nil {
			return nil, fmt.Errorf("decode weight map: %w", err)
		}
	}
	return &p, nil
}

var analysisColumns = []string{
	"id",
	"user_id",
	"primary_style",
	"style_scores",
	"color_palette",
	"recommendations",
	"confidence",
	"wardrobe_size",
	"created_at",
}

// StyleAnalysisRepository implements port.StyleAnalysisRepository.
type StyleAnalysisRepository struct {
	base
}

// NewStyleAnalysisRepository wires the style analysis repository.
func NewStyleAnalysisRepository(exec pgExecutor) *StyleAnalysisRepository {
	return &StyleAnalysisRepository{base: newBase(exec)}
}

// Create stores an analysis.
func (r *StyleAnalysisRepository) Create(ctx context.Context, a domain.StyleAnalysis) error {
	scores, err := json.Marshal(a.StyleScores)
	if err != nil {
		return fmt.Errorf("marshal style scores: %w", err)
	}
	palette, err := json.Marshal(nonNilStrings(a.ColorPalette))
	if err != nil {
		return fmt.Errorf("marshal color palette: %w", err)
	}
	recs, err := json.Marshal(nonNilStrings(a.Recommendations))
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	stmt, args, err := r.builder.Insert(analysesTable).
		Columns(analysisColumns...).
		Values(a.ID, a.UserID, a.PrimaryStyle, scores, palette, recs, a.Confidence, a.WardrobeSize, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert style analysis sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert style analysis")
	return err
}

// ListByUser returns the most recent analyses of a user.
func (r *StyleAnalysisRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.StyleAnalysis, error) {
	stmt, args, err := r.builder.
		Select(analysisColumns...).
		From(analysesTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list style analyses sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query style analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]domain.StyleAnalysis, 0)
	for rows.Next() {
		var (
			a                     domain.StyleAnalysis
			scores, palette, recs []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.PrimaryStyle, &scores, &palette, &recs, &a.Confidence, &a.WardrobeSize, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan style analysis: %w", err)
		}
		if err := unmarshalJSON(scores, &a.StyleScores); err != nil {
			return nil, fmt.Errorf("decode style scores: %w", err)
		}
		if err := unmarshalJSON(palette, &a.ColorPalette); err != nil {
			return nil, fmt.Errorf("decode color palette: %w", err)
		}
		if err := unmarshalJSON(recs, &a.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

var suggestionColumns = []string{
	"id",
	"user_id",
	"occasion",
	"weather",
	"item_ids",
	"colors",
	"categories",
	"style_score",
	"personalized",
	"explanation",
	"created_at",
}

// SuggestionRepository implements port.SuggestionRepository.
type SuggestionRepository struct {
	base
}

// NewSuggestionRepository wires the outfit suggestion repository.
func NewSuggestionRepository(exec pgExecutor) *SuggestionRepository {
	return &SuggestionRepository{base: newBase(exec)}
}

// Create stores a suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, s domain.OutfitSuggestion) error {
	var encoded [3][]byte
	for i, list := range [][]string{s.ItemIDs, s.Colors, s.Categories} {
		raw, err := json.Marshal(nonNilStrings(list))
		if err != nil {
			return fmt.Errorf("marshal suggestion list: %w", err)
		}
		encoded[i] = raw
	}
	stmt, args, err := r.builder.Insert(suggestionsTable).
		Columns(suggestionColumns...).
		Values(s.ID, s.UserID, s.Occasion, s.Weather, encoded[0], encoded[1], encoded[2], s.StyleScore, s.Personalized, s.Explanation, s.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert suggestion sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert suggestion")
	return err
}

// Get loads a suggestion owned by userID.
func (r *SuggestionRepository) Get(ctx context.Context, userID, id string) (*domain.OutfitSuggestion, error) {
	stmt, args, err := r.builder.
		Select(suggestionColumns...).
		From(suggestionsTable).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select suggestion sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var (
		s                           domain.OutfitSuggestion
		itemIDs, colors, categories []byte
	)
	if err := r.executor(ctx).QueryRow(ctx, stmt, args...).Scan(
		&s.ID, &s.UserID, &s.Occasion, &s.Weather, &itemIDs, &colors, &categories,
		&s.StyleScore, &s.Personalized, &s.Explanation, &s.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan suggestion: %w", err)
	}
	for raw, dst := range map[*[]byte]*[]string{&itemIDs: &s.ItemIDs, &colors: &s.Colors, &categories: &s.Categories} {
		if err := unmarshalJSON(*raw, dst); err != nil {
			return nil, fmt.Errorf("decode suggestion list: %w", err)
		}
	}
	return &s, nil
}

// FeedbackRepository implements port.FeedbackRepository.
type FeedbackRepository struct {
	base
}

// NewFeedbackRepository wires the feedback repository.
func NewFeedbackRepository(exec pgExecutor) *FeedbackRepository {
	return &FeedbackRepository{base: newBase(exec)}
}

// Create stores a rating.
func (r *FeedbackRepository) Create(ctx context.Context, f domain.Feedback) error {
	liked, err := json.Marshal(nonNilStrings(f.LikedAspects))
	if err != nil {
		return fmt.Errorf("marshal liked aspects: %w", err)
	}
	disliked, err := json.Marshal(nonNilStrings(f.DislikedAspects))
	if err != nil {
		return fmt.Errorf("marshal disliked aspects: %w", err)
	}
	stmt, args, err := r.builder.Insert(feedbackTable).
		Columns("id", "user_id", "suggestion_id", "rating", "liked_aspects", "disliked_aspects", "comment", "created_at").
		Values(f.ID, f.UserID, f.SuggestionID, f.Rating, liked, disliked, f.Comment, f.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert feedback sql: %w", err)
	}
	_, err = r.execCount(ctx, stmt, args, "insert feedback")
	return err
}
