package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/worker"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	// ErrSuggestionNotFound indicates the suggestion does not exist for the user.
	ErrSuggestionNotFound = domain.NotFound("suggestion")
)

const (
	defaultOccasion       = "casual"
	normalizationPageSize = 200
	analysesPageSize      = 20
)

// UserContextSource is the slice of the user-context fetcher the styling service reads.
type UserContextSource interface {
	FetchProfile(ctx context.Context, userID, token string) (domain.UserProfileSnapshot, error)
	FetchWardrobe(ctx context.Context, userID, token string) ([]domain.WardrobeSummary, error)
}

// FeedbackInput is a rating of a suggestion with optional aspect tags.
type FeedbackInput struct {
	Rating          int
	LikedAspects    []string
	DislikedAspects []string
	Comment         string
}

// StylingService runs the style inferencer and the feedback learning loop.
type StylingService struct {
	profiles    port.StyleProfileRepository
	analyses    port.StyleAnalysisRepository
	suggestions port.SuggestionRepository
	feedback    port.FeedbackRepository
	inferencer  port.StyleInferencer
	userContext UserContextSource
	tx          port.Transactor
	logger      *zap.Logger
	now         func() time.Time
}

// NewStylingService constructs a StylingService.
func NewStylingService(
	profiles port.StyleProfileRepository,
	analyses port.StyleAnalysisRepository,
	suggestions port.SuggestionRepository,
	feedback port.FeedbackRepository,
	inferencer port.StyleInferencer,
	userContext UserContextSource,
	logger *zap.Logger,
) *StylingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StylingService{
		profiles:    profiles,
		analyses:    analyses,
		suggestions: suggestions,
		feedback:    feedback,
		inferencer:  inferencer,
		userContext: userContext,
		logger:      logger,
		now:         utcNow,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *StylingService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes feedback and normalization updates atomic per profile.
func (s *StylingService) WithTransactor(tx port.Transactor) *StylingService {
	s.tx = tx
	return s
}

// Profile returns the learned style profile, creating it on first access.
func (s *StylingService) Profile(ctx context.Context, userID string) (*domain.StyleProfile, error) {
	defaults := domain.DefaultStyleProfile(userID, s.now())
	defaults.ID = uuid.NewString()
	profile, err := s.profiles.GetOrCreate(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("load style profile: %w", err)
	}
	return profile, nil
}

// input gathers what the inferencer needs. Peer failures are returned as-is
// so the client sees auth_unavailable or dependency_timeout.
func (s *StylingService) input(ctx context.Context, userID, token, occasion, weather string) (domain.StyleInput, error) {
	profile, err := s.userContext.FetchProfile(ctx, userID, token)
	if err != nil {
		return domain.StyleInput{}, fmt.Errorf("fetch profile: %w", err)
	}
	wardrobe, err := s.userContext.FetchWardrobe(ctx, userID, token)
	if err != nil {
		return domain.StyleInput{}, fmt.Errorf("fetch wardrobe: %w", err)
	}
	learned, err := s.Profile(ctx, userID)
	if err != nil {
		return domain.StyleInput{}, err
	}
	return domain.StyleInput{
		Profile:  profile,
		Wardrobe: wardrobe,
		Learned:  *learned,
		Occasion: occasion,
		Weather:  weather,
	}, nil
}

// Analyze runs a style analysis and records the primary style on the profile.
func (s *StylingService) Analyze(ctx context.Context, userID, token string) (*domain.StyleAnalysis, error) {
	input, err := s.input(ctx, userID, token, "", "")
	if err != nil {
		return nil, err
	}
	analysis, err := s.inferencer.Analyze(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("analyze style: %w", err)
	}
	analysis.ID = uuid.NewString()
	analysis.UserID = userID
	analysis.WardrobeSize = len(input.Wardrobe)
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = s.now()
	}

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.analyses.Create(ctx, analysis); err != nil {
			return fmt.Errorf("store analysis: %w", err)
		}
		profile, err := s.profiles.GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock style profile: %w", err)
		}
		if profile.PrimaryStyle == analysis.PrimaryStyle {
			return nil
		}
		profile.PrimaryStyle = analysis.PrimaryStyle
		profile.UpdatedAt = s.now()
		return s.profiles.Update(ctx, *profile)
	})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ListAnalyses returns the user's most recent analyses.
func (s *StylingService) ListAnalyses(ctx context.Context, userID string, limit int) ([]domain.StyleAnalysis, error) {
	analyses, err := s.analyses.ListByUser(ctx, userID, pageLimit(limit, analysesPageSize, 100))
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return analyses, nil
}

// Suggest generates an outfit. Learned weights only apply once the profile is
// personalization-ready; the inferencer decides that from the input.
func (s *StylingService) Suggest(ctx context.Context, userID, token, occasion, weather string) (*domain.OutfitSuggestion, error) {
	occasion = strings.ToLower(strings.TrimSpace(occasion))
	if occasion == "" {
		occasion = defaultOccasion
	}
	weather = strings.ToLower(strings.TrimSpace(weather))

	input, err := s.input(ctx, userID, token, occasion, weather)
	if err != nil {
		return nil, err
	}
	suggestion, err := s.inferencer.Suggest(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("suggest outfit: %w", err)
	}
	suggestion.ID = uuid.NewString()
	suggestion.UserID = userID
	suggestion.Occasion = occasion
	suggestion.Weather = weather
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = s.now()
	}

	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("store suggestion: %w", err)
	}
	return &suggestion, nil
}

// SubmitFeedback stores a rating and folds it into the learned profile under a row lock.
func (s *StylingService) SubmitFeedback(ctx context.Context, userID, suggestionID string, in FeedbackInput) (*domain.StyleProfile, error) {
	now := s.now()
	fb := domain.Feedback{
		ID:              uuid.NewString(),
		UserID:          userID,
		SuggestionID:    suggestionID,
		Rating:          in.Rating,
		LikedAspects:    in.LikedAspects,
		DislikedAspects: in.DislikedAspects,
		Comment:         strings.TrimSpace(in.Comment),
		CreatedAt:       now,
	}
	if err := fb.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.Profile(ctx, userID); err != nil {
		return nil, err
	}

	var updated domain.StyleProfile
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		suggestion, err := s.suggestions.Get(ctx, userID, suggestionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrSuggestionNotFound
			}
			return fmt.Errorf("load suggestion: %w", err)
		}
		profile, err := s.profiles.GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock style profile: %w", err)
		}
		if profile.AutoLearnEnabled {
			profile.ApplyFeedback(fb, *suggestion, now)
			if err := s.profiles.Update(ctx, *profile); err != nil {
				return fmt.Errorf("update style profile: %w", err)
			}
		}
		if err := s.feedback.Create(ctx, fb); err != nil {
			return fmt.Errorf("store feedback: %w", err)
		}
		updated = *profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Trends returns the seasonal forecast.
func (s *StylingService) Trends(ctx context.Context, season string) (*domain.TrendForecast, error) {
	forecast, err := s.inferencer.Forecast(ctx, strings.ToLower(strings.TrimSpace(season)))
	if err != nil {
		return nil, fmt.Errorf("forecast trends: %w", err)
	}
	return &forecast, nil
}

// NormalizeProfiles clamps every weight map whose maximum exceeds 1.0. It pages
// through all profiles and locks each one it rewrites.
func (s *StylingService) NormalizeProfiles(ctx context.Context) (worker.Report, error) {
	report := worker.Report{"scanned": 0, "normalized": 0}
	after := ""
	for {
		page, err := s.profiles.ListPage(ctx, after, normalizationPageSize)
		if err != nil {
			return report, fmt.Errorf("list style profiles: %w", err)
		}
		for _, p := range page {
			report["scanned"]++
			if !p.NeedsNormalization() {
				continue
			}
			err := withinTx(ctx, s.tx, func(ctx context.Context) error {
				locked, err := s.profiles.GetForUpdate(ctx, p.UserID)
				if err != nil {
					return err
				}
				if !locked.Normalize() {
					return nil
				}
				locked.UpdatedAt = s.now()
				return s.profiles.Update(ctx, *locked)
			})
			if err != nil {
				return report, fmt.Errorf("normalize profile %s: %w", p.UserID, err)
			}
			report["normalized"]++
		}
		if len(page) < normalizationPageSize {
			return report, nil
		}
		after = page[len(page)-1].UserID
	}
}

// ExportFragment returns the styling sections of a data export. Users who never
// used styling get an empty fragment; no profile is created.
func (s *StylingService) ExportFragment(ctx context.Context, userID string) (domain.ExportFragment, error) {
	var fragment domain.ExportFragment
	profile, err := s.profiles.Export(ctx, userID)
	switch {
	case err == nil:
		fragment.StyleProfile = map[string]any{
			"primary_style":        profile.PrimaryStyle,
			"preferred_colors":     profile.PreferredColors,
			"avoided_colors":       profile.AvoidedColors,
			"preferred_categories": profile.PreferredCategories,
			"avoided_categories":   profile.AvoidedCategories,
			"confidence_score":     profile.ConfidenceScore,
			"learning_data_points": profile.LearningDataPoints,
			"auto_learn_enabled":   profile.AutoLearnEnabled,
			"created_at":           profile.CreatedAt,
			"updated_at":           profile.UpdatedAt,
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return fragment, fmt.Errorf("export style profile: %w", err)
	}

	analyses, err := s.analyses.ListByUser(ctx, userID, 100)
	if err != nil {
		return fragment, fmt.Errorf("export analyses: %w", err)
	}
	for _, a := range analyses {
		fragment.StyleInsights = append(fragment.StyleInsights, map[string]any{
			"id":              a.ID,
			"primary_style":   a.PrimaryStyle,
			"style_scores":    a.StyleScores,
			"color_palette":   a.ColorPalette,
			"recommendations": a.Recommendations,
			"confidence":      a.Confidence,
			"created_at":      a.CreatedAt,
		})
	}
	return fragment, nil
}
