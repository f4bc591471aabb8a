// Package stub provides deterministic stand-ins for the style, vision and
// payment capabilities. Given the same input they return the same output.
package stub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

var styleOrder = []string{"classic", "edgy", "bohemian", "minimalist", "romantic", "trendy"}

var styleSeason = map[string]string{
	"classic":    "winter",
	"edgy":       "winter",
	"minimalist": "winter",
	"bohemian":   "autumn",
	"romantic":   "spring",
	"trendy":     "summer",
}

var seasonPalette = map[string][]string{
	"spring": {"coral", "peach", "light_blue", "mint_green", "lavender"},
	"summer": {"soft_blue", "rose_pink", "lavender", "mint", "light_grey"},
	"autumn": {"rust", "olive_green", "burnt_orange", "deep_brown", "burgundy"},
	"winter": {"black", "white", "navy", "burgundy", "emerald"},
}

// StyleInferencer scores wardrobe and profile signals with fixed rules.
type StyleInferencer struct {
	now func() time.Time
}

// NewStyleInferencer builds the rule-based inferencer.
func NewStyleInferencer() *StyleInferencer {
	return &StyleInferencer{now: func() time.Time { return time.Now().UTC() }}
}

// Analyze derives a dominant style, palette and recommendations.
func (s *StyleInferencer) Analyze(_ context.Context, input domain.StyleInput) (domain.StyleAnalysis, error) {
	scores := make(map[string]float64, len(styleOrder))
	for _, style := range styleOrder {
		scores[style] = 0
	}

	for _, item := range input.Wardrobe {
		category := strings.ToLower(item.Category)
		color := strings.ToLower(item.ColorPrimary)
		switch {
		case contains(category, "blazer", "trouser", "shirt") || color == "navy":
			scores["classic"] += 0.2
		case contains(category, "leather", "boot") || color == "black":
			scores["edgy"] += 0.3
		case contains(category, "maxi", "kimono", "sandal"):
			scores["bohemian"] += 0.25
		case contains(category, "dress", "skirt", "blouse") || color == "pink":
			scores["romantic"] += 0.2
		case contains(category, "crop", "high_waisted"):
			scores["trendy"] += 0.25
		}
		if color == "white" || color == "grey" || color == "beige" {
			scores["minimalist"] += 0.2
		}
	}

	if pref := strings.ToLower(input.Profile.StylePreference); pref != "" {
		if _, ok := scores[pref]; ok {
			scores[pref] += 0.4
		}
	}

	dominant := styleOrder[0]
	for _, style := range styleOrder[1:] {
		if scores[style] > scores[dominant] {
			dominant = style
		}
	}
	confidence := scores[dominant]
	if confidence > 1 {
		confidence = 1
	}

	palette := seasonPalette[styleSeason[dominant]]
	recommendations := []string{
		fmt.Sprintf("Build outfits around a %s silhouette", dominant),
		fmt.Sprintf("Lean on %s palette colors such as %s", styleSeason[dominant], strings.Join(palette[:3], ", ")),
	}
	if len(input.Wardrobe) < 10 {
		recommendations = append(recommendations, "Add versatile basics to reach at least ten pieces")
	}

	return domain.StyleAnalysis{
		UserID:          input.Profile.ID,
		PrimaryStyle:    dominant,
		StyleScores:     scores,
		ColorPalette:    append([]string(nil), palette...),
		Recommendations: recommendations,
		Confidence:      confidence,
		WardrobeSize:    len(input.Wardrobe),
		CreatedAt:       s.now(),
	}, nil
}

// Suggest picks wardrobe items for the occasion. When the learned profile is
// personalization-ready, preferred colors rank first and avoided colors and
// categories are skipped.
func (s *StyleInferencer) Suggest(_ context.Context, input domain.StyleInput) (domain.OutfitSuggestion, error) {
	personalized := input.Learned.PersonalizationReady()

	candidates := make([]domain.WardrobeSummary, 0, len(input.Wardrobe))
	for _, item := range input.Wardrobe {
		if personalized {
			if input.Learned.AvoidedColors[strings.ToLower(item.ColorPrimary)] > 0 {
				continue
			}
			if input.Learned.AvoidedCategories[strings.ToLower(item.Category)] > 0 {
				continue
			}
		}
		candidates = append(candidates, item)
	}

	weight := func(item domain.WardrobeSummary) float64 {
		w := float64(item.WearCount) * 0.01
		if item.Favorite {
			w += 0.2
		}
		if personalized {
			w += input.Learned.PreferredColors[strings.ToLower(item.ColorPrimary)]
			w += input.Learned.PreferredCategories[strings.ToLower(item.Category)]
		}
		return w
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		wi, wj := weight(candidates[i]), weight(candidates[j])
		if wi != wj {
			return wi > wj
		}
		return candidates[i].ID < candidates[j].ID
	})

	picked := make([]domain.WardrobeSummary, 0, 4)
	used := map[string]bool{}
	for _, item := range candidates {
		category := strings.ToLower(item.Category)
		if used[category] || len(picked) == 4 {
			continue
		}
		used[category] = true
		picked = append(picked, item)
	}

	suggestion := domain.OutfitSuggestion{
		UserID:       input.Profile.ID,
		Occasion:     input.Occasion,
		Weather:      input.Weather,
		ItemIDs:      []string{},
		Colors:       []string{},
		Categories:   []string{},
		Personalized: personalized,
		CreatedAt:    s.now(),
	}
	seenColor := map[string]bool{}
	total := 0.0
	for _, item := range picked {
		suggestion.ItemIDs = append(suggestion.ItemIDs, item.ID)
		suggestion.Categories = append(suggestion.Categories, strings.ToLower(item.Category))
		if c := strings.ToLower(item.ColorPrimary); c != "" && !seenColor[c] {
			seenColor[c] = true
			suggestion.Colors = append(suggestion.Colors, c)
		}
		total += weight(item)
	}

	if len(picked) == 0 {
		suggestion.Colors = append(suggestion.Colors, seasonPalette["winter"][:2]...)
		suggestion.Explanation = fmt.Sprintf("Add pieces to your wardrobe to get %s outfits built from your own items", orDefault(input.Occasion, "everyday"))
		suggestion.StyleScore = 0.5
		return suggestion, nil
	}

	score := 0.6 + total/float64(len(picked))*0.2
	if score > 1 {
		score = 1
	}
	suggestion.StyleScore = score
	if personalized {
		suggestion.Explanation = fmt.Sprintf("Picked for %s using your learned color and category preferences", orDefault(input.Occasion, "everyday"))
	} else {
		suggestion.Explanation = fmt.Sprintf("A balanced %s look from your most worn pieces", orDefault(input.Occasion, "everyday"))
	}
	return suggestion, nil
}

// Forecast returns a fixed seasonal trend list.
func (s *StyleInferencer) Forecast(_ context.Context, season string) (domain.TrendForecast, error) {
	season = strings.ToLower(strings.TrimSpace(season))
	palette, ok := seasonPalette[season]
	if !ok {
		season = "winter"
		palette = seasonPalette[season]
	}
	return domain.TrendForecast{
		Season: season,
		Trends: []domain.Trend{
			{Name: "quiet luxury", Popularity: 0.82, Colors: palette[:2], Categories: []string{"outerwear", "knitwear"}},
			{Name: "relaxed tailoring", Popularity: 0.74, Colors: palette[2:4], Categories: []string{"blazer", "trousers"}},
			{Name: "statement accessories", Popularity: 0.61, Colors: palette[4:], Categories: []string{"accessory", "shoes"}},
		},
		GeneratedAt: s.now(),
	}, nil
}

func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

var _ port.StyleInferencer = (*StyleInferencer)(nil)
