package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/stub"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

type memStyleProfiles struct {
	mu   sync.Mutex
	rows map[string]domain.StyleProfile
}

func newMemStyleProfiles() *memStyleProfiles {
	return &memStyleProfiles{rows: make(map[string]domain.StyleProfile)}
}

func (r *memStyleProfiles) GetOrCreate(_ context.Context, defaults domain.StyleProfile) (*domain.StyleProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[defaults.UserID]
	if !ok {
		row = defaults
		r.rows[defaults.UserID] = row
	}
	return cloneProfile(row), nil
}

func (r *memStyleProfiles) GetForUpdate(_ context.Context, userID string) (*domain.StyleProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProfile(row), nil
}

func (r *memStyleProfiles) Update(_ context.Context, profile domain.StyleProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[profile.UserID] = *cloneProfile(profile)
	return nil
}

func (r *memStyleProfiles) ListPage(_ context.Context, afterUserID string, limit int) ([]domain.StyleProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rows))
	for id := range r.rows {
		if id > afterUserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var out []domain.StyleProfile
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, *cloneProfile(r.rows[id]))
	}
	return out, nil
}

func (r *memStyleProfiles) Export(ctx context.Context, userID string) (*domain.StyleProfile, error) {
	return r.GetForUpdate(ctx, userID)
}

func cloneProfile(p domain.StyleProfile) *domain.StyleProfile {
	clone := func(m map[string]float64) map[string]float64 {
		out := make(map[string]float64, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	p.PreferredColors = clone(p.PreferredColors)
	p.AvoidedColors = clone(p.AvoidedColors)
	p.PreferredCategories = clone(p.PreferredCategories)
	p.AvoidedCategories = clone(p.AvoidedCategories)
	return &p
}

type memStyleAnalyses struct {
	rows []domain.StyleAnalysis
}

func (r *memStyleAnalyses) Create(_ context.Context, analysis domain.StyleAnalysis) error {
	r.rows = append(r.rows, analysis)
	return nil
}

func (r *memStyleAnalyses) ListByUser(_ context.Context, userID string, limit int) ([]domain.StyleAnalysis, error) {
	var out []domain.StyleAnalysis
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].UserID == userID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

type memSuggestions struct {
	rows map[string]domain.OutfitSuggestion
}

func (r *memSuggestions) Create(_ context.Context, s domain.OutfitSuggestion) error {
	r.rows[s.ID] = s
	return nil
}

func (r *memSuggestions) Get(_ context.Context, userID, id string) (*domain.OutfitSuggestion, error) {
	s, ok := r.rows[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

type memFeedback struct {
	rows []domain.Feedback
}

func (r *memFeedback) Create(_ context.Context, fb domain.Feedback) error {
	r.rows = append(r.rows, fb)
	return nil
}

type staticUserContext struct {
	wardrobe []domain.WardrobeSummary
	err      error
}

func (s staticUserContext) FetchProfile(_ context.Context, userID, _ string) (domain.UserProfileSnapshot, error) {
	if s.err != nil {
		return domain.UserProfileSnapshot{}, s.err
	}
	return domain.UserProfileSnapshot{ID: userID, Username: "priya", StylePreference: "minimal"}, nil
}

func (s staticUserContext) FetchWardrobe(context.Context, string, string) ([]domain.WardrobeSummary, error) {
	return s.wardrobe, s.err
}

type stylingHarness struct {
	clock       *testClock
	profiles    *memStyleProfiles
	analyses    *memStyleAnalyses
	suggestions *memSuggestions
	feedback    *memFeedback
	service     *StylingService
}

func newStylingHarness(userContext UserContextSource) *stylingHarness {
	h := &stylingHarness{
		clock:       newTestClock(),
		profiles:    newMemStyleProfiles(),
		analyses:    &memStyleAnalyses{},
		suggestions: &memSuggestions{rows: make(map[string]domain.OutfitSuggestion)},
		feedback:    &memFeedback{},
	}
	h.service = NewStylingService(h.profiles, h.analyses, h.suggestions, h.feedback, stub.NewStyleInferencer(), userContext, nil).
		WithTransactor(&passthroughTx{})
	h.service.WithClock(h.clock.Now)
	return h
}

var sampleWardrobe = []domain.WardrobeSummary{
	{ID: "item-1", Name: "Navy blazer", Category: "outerwear", ColorPrimary: "navy", WearCount: 12, Favorite: true},
	{ID: "item-2", Name: "White tee", Category: "tops", ColorPrimary: "white", WearCount: 30},
	{ID: "item-3", Name: "Red skirt", Category: "bottoms", ColorPrimary: "red", WearCount: 2},
}

func TestStylingServiceFeedbackLearnsPreferences(t *testing.T) {
	h := newStylingHarness(staticUserContext{wardrobe: sampleWardrobe})
	ctx := context.Background()

	suggestion, err := h.service.Suggest(ctx, "user-1", "tok", " Work ", "")
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if suggestion.Occasion != "work" || suggestion.Personalized {
		t.Fatalf("unexpected suggestion: %+v", suggestion)
	}
	if len(suggestion.Colors) == 0 {
		t.Fatalf("expected suggestion colors")
	}

	profile, err := h.service.SubmitFeedback(ctx, "user-1", suggestion.ID, FeedbackInput{
		Rating:          5,
		DislikedAspects: []string{"category:bottoms", "color:red"},
	})
	if err != nil {
		t.Fatalf("SubmitFeedback returned error: %v", err)
	}
	for _, c := range suggestion.Colors {
		if profile.PreferredColors[c] <= 0 {
			t.Fatalf("expected %s to be preferred, got %v", c, profile.PreferredColors)
		}
	}
	if profile.AvoidedCategories["bottoms"] <= 0 || profile.AvoidedColors["red"] <= 0 {
		t.Fatalf("expected avoidance to be learned, got %+v", profile)
	}
	if profile.LearningDataPoints != 1 || profile.ConfidenceScore <= domain.DefaultStyleConfidence {
		t.Fatalf("expected confidence to grow, got %+v", profile)
	}
	if len(h.feedback.rows) != 1 {
		t.Fatalf("expected feedback stored, got %d", len(h.feedback.rows))
	}
}

func TestStylingServiceFeedbackRespectsAutoLearn(t *testing.T) {
	h := newStylingHarness(staticUserContext{wardrobe: sampleWardrobe})
	ctx := context.Background()
	suggestion, err := h.service.Suggest(ctx, "user-1", "tok", "", "")
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}

	row := h.profiles.rows["user-1"]
	row.AutoLearnEnabled = false
	h.profiles.rows["user-1"] = row

	profile, err := h.service.SubmitFeedback(ctx, "user-1", suggestion.ID, FeedbackInput{Rating: 5})
	if err != nil {
		t.Fatalf("SubmitFeedback returned error: %v", err)
	}
	if profile.LearningDataPoints != 0 || len(profile.PreferredColors) != 0 {
		t.Fatalf("expected profile untouched with auto-learn off, got %+v", profile)
	}
	if len(h.feedback.rows) != 1 {
		t.Fatalf("expected feedback to be stored anyway")
	}
}

func TestStylingServiceFeedbackValidation(t *testing.T) {
	h := newStylingHarness(staticUserContext{wardrobe: sampleWardrobe})
	ctx := context.Background()

	if _, err := h.service.SubmitFeedback(ctx, "user-1", "missing", FeedbackInput{Rating: 6}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.service.SubmitFeedback(ctx, "user-1", "missing", FeedbackInput{Rating: 3}); !errors.Is(err, ErrSuggestionNotFound) {
		t.Fatalf("expected suggestion not found, got %v", err)
	}
}

func TestStylingServicePropagatesPeerFailure(t *testing.T) {
	peerErr := domain.NewError(domain.KindAuthUnavailable, "identity_unavailable", "identity service unavailable")
	h := newStylingHarness(staticUserContext{err: peerErr})

	_, err := h.service.Suggest(context.Background(), "user-1", "tok", "", "")
	if !errors.Is(err, domain.ErrAuthUnavailable) {
		t.Fatalf("expected auth unavailable, got %v", err)
	}
	if len(h.suggestions.rows) != 0 {
		t.Fatalf("expected nothing stored on failure")
	}
}

func TestStylingServiceAnalyzeUpdatesPrimaryStyle(t *testing.T) {
	h := newStylingHarness(staticUserContext{wardrobe: sampleWardrobe})
	analysis, err := h.service.Analyze(context.Background(), "user-1", "tok")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if analysis.WardrobeSize != len(sampleWardrobe) {
		t.Fatalf("expected wardrobe size %d, got %d", len(sampleWardrobe), analysis.WardrobeSize)
	}
	if got := h.profiles.rows["user-1"].PrimaryStyle; got != analysis.PrimaryStyle {
		t.Fatalf("expected primary style %q on profile, got %q", analysis.PrimaryStyle, got)
	}
}

func TestStylingServiceNormalizeProfiles(t *testing.T) {
	h := newStylingHarness(staticUserContext{})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	heavy := domain.DefaultStyleProfile("user-a", now)
	heavy.PreferredColors = map[string]float64{"navy": 2.0, "white": 1.0}
	light := domain.DefaultStyleProfile("user-b", now)
	light.PreferredColors = map[string]float64{"navy": 0.4}
	h.profiles.rows["user-a"] = heavy
	h.profiles.rows["user-b"] = light

	report, err := h.service.NormalizeProfiles(context.Background())
	if err != nil {
		t.Fatalf("NormalizeProfiles returned error: %v", err)
	}
	if report["scanned"] != 2 || report["normalized"] != 1 {
		t.Fatalf("unexpected report: %v", report)
	}
	got := h.profiles.rows["user-a"].PreferredColors
	if got["navy"] != 1.0 || got["white"] != 0.5 {
		t.Fatalf("expected weights scaled by the maximum, got %v", got)
	}
	if h.profiles.rows["user-b"].PreferredColors["navy"] != 0.4 {
		t.Fatalf("expected light profile untouched")
	}
}

func TestStylingServiceExportFragmentWithoutProfile(t *testing.T) {
	h := newStylingHarness(staticUserContext{})
	fragment, err := h.service.ExportFragment(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ExportFragment returned error: %v", err)
	}
	if fragment.StyleProfile != nil || len(fragment.StyleInsights) != 0 {
		t.Fatalf("expected an empty fragment, got %+v", fragment)
	}
	if len(h.profiles.rows) != 0 {
		t.Fatalf("export must not create a profile")
	}
}
