package domain

import (
	"strings"
	"time"
)

const (
	DefaultStyleConfidence   = 0.1
	PersonalizationThreshold = 0.3

	feedbackWeightStep = 0.1
	confidenceGain     = 0.02
	confidenceLoss     = 0.01
)

// StyleProfile is the per-user learned preference state owned by the styling service.
type StyleProfile struct {
	ID                  string
	UserID              string
	PrimaryStyle        string
	PreferredColors     map[string]float64
	AvoidedColors       map[string]float64
	PreferredCategories map[string]float64
	AvoidedCategories   map[string]float64
	ConfidenceScore     float64
	LearningDataPoints  int
	AutoLearnEnabled    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DefaultStyleProfile returns the initial profile created on first access.
func DefaultStyleProfile(userID string, now time.Time) StyleProfile {
	return StyleProfile{
		UserID:              userID,
		PreferredColors:     map[string]float64{},
		AvoidedColors:       map[string]float64{},
		PreferredCategories: map[string]float64{},
		AvoidedCategories:   map[string]float64{},
		ConfidenceScore:     DefaultStyleConfidence,
		AutoLearnEnabled:    true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// PersonalizationReady reports whether suggestions should use the learned weights.
func (p StyleProfile) PersonalizationReady() bool {
	return p.ConfidenceScore >= PersonalizationThreshold
}

// ApplyFeedback folds one rating into the preference maps and confidence score.
// Disliked aspects are matched as "color:<name>" or "category:<name>", or by
// plain name against the suggestion's colors and categories.
func (p *StyleProfile) ApplyFeedback(fb Feedback, suggestion OutfitSuggestion, at time.Time) {
	p.ensureMaps()

	if fb.Rating >= 4 {
		for _, color := range suggestion.Colors {
			p.PreferredColors[normalizeTag(color)] += feedbackWeightStep
		}
	}

	for _, aspect := range fb.DislikedAspects {
		kind, name := classifyAspect(aspect, suggestion)
		switch kind {
		case "color":
			p.AvoidedColors[name] += feedbackWeightStep
		case "category":
			p.AvoidedCategories[name] += feedbackWeightStep
		}
	}

	switch {
	case fb.Rating >= 4:
		p.ConfidenceScore += confidenceGain
	case fb.Rating <= 2:
		p.ConfidenceScore -= confidenceLoss
	}
	p.ConfidenceScore = clampUnit(p.ConfidenceScore)
	p.LearningDataPoints++
	p.UpdatedAt = at
}

// Normalize divides every weight map whose maximum exceeds 1.0 by that maximum.
// It reports whether any map changed.
func (p *StyleProfile) Normalize() bool {
	changed := false
	for _, m := range []map[string]float64{p.PreferredColors, p.AvoidedColors, p.PreferredCategories, p.AvoidedCategories} {
		if normalizeWeights(m) {
			changed = true
		}
	}
	return changed
}

// NeedsNormalization reports whether any weight map has a maximum above 1.0.
func (p StyleProfile) NeedsNormalization() bool {
	for _, m := range []map[string]float64{p.PreferredColors, p.AvoidedColors, p.PreferredCategories, p.AvoidedCategories} {
		if maxWeight(m) > 1.0 {
			return true
		}
	}
	return false
}

func (p *StyleProfile) ensureMaps() {
	if p.PreferredColors == nil {
		p.PreferredColors = map[string]float64{}
	}
	if p.AvoidedColors == nil {
		p.AvoidedColors = map[string]float64{}
	}
	if p.PreferredCategories == nil {
		p.PreferredCategories = map[string]float64{}
	}
	if p.AvoidedCategories == nil {
		p.AvoidedCategories = map[string]float64{}
	}
}

func normalizeWeights(m map[string]float64) bool {
	top := maxWeight(m)
	if top <= 1.0 {
		return false
	}
	for k, v := range m {
		m[k] = v / top
	}
	return true
}

func maxWeight(m map[string]float64) float64 {
	top := 0.0
	for _, v := range m {
		if v > top {
			top = v
		}
	}
	return top
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func classifyAspect(aspect string, suggestion OutfitSuggestion) (string, string) {
	tag := normalizeTag(aspect)
	if name, ok := strings.CutPrefix(tag, "color:"); ok {
		return "color", strings.TrimSpace(name)
	}
	if name, ok := strings.CutPrefix(tag, "category:"); ok {
		return "category", strings.TrimSpace(name)
	}
	for _, c := range suggestion.Colors {
		if normalizeTag(c) == tag {
			return "color", tag
		}
	}
	for _, c := range suggestion.Categories {
		if normalizeTag(c) == tag {
			return "category", tag
		}
	}
	return "", ""
}

// StyleAnalysis is a persisted result of running the style inferencer for a user.
type StyleAnalysis struct {
	ID              string
	UserID          string
	PrimaryStyle    string
	StyleScores     map[string]float64
	ColorPalette    []string
	Recommendations []string
	Confidence      float64
	WardrobeSize    int
	CreatedAt       time.Time
}

// OutfitSuggestion is a generated outfit for an occasion.
type OutfitSuggestion struct {
	ID           string
	UserID       string
	Occasion     string
	Weather      string
	ItemIDs      []string
	Colors       []string
	Categories   []string
	StyleScore   float64
	Personalized bool
	Explanation  string
	CreatedAt    time.Time
}

// Feedback is a user's rating of a suggestion.
type Feedback struct {
	ID              string
	UserID          string
	SuggestionID    string
	Rating          int
	LikedAspects    []string
	DislikedAspects []string
	Comment         string
	CreatedAt       time.Time
}

// Validate checks the rating range.
func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return Validation("rating", "must be between 1 and 5")
	}
	return nil
}

// Trend is one forecast entry.
type Trend struct {
	Name       string   `json:"name"`
	Popularity float64  `json:"popularity"`
	Colors     []string `json:"colors"`
	Categories []string `json:"categories"`
}

// TrendForecast is a seasonal forecast produced by the style inferencer.
type TrendForecast struct {
	Season      string    `json:"season"`
	Trends      []Trend   `json:"trends"`
	GeneratedAt time.Time `json:"generated_at"`
}

// StyleInput is what the inferencer sees about a user.
type StyleInput struct {
	Profile  UserProfileSnapshot
	Wardrobe []WardrobeSummary
	Learned  StyleProfile
	Occasion string
	Weather  string
}
