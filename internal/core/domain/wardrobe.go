package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// WardrobeItem is a garment or accessory owned by a user.
type WardrobeItem struct {
	ID             string
	UserID         string
	Name           string
	Category       string
	Subcategory    string
	Brand          string
	ColorPrimary   string
	ColorSecondary string
	ImageURL       string
	ContentHash    string
	AnalysisID     *string
	Size           string
	Season         string
	OccasionTags   []string
	WearCount      int
	LastWorn       *time.Time
	Favorite       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the fields required to store an item.
func (i WardrobeItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return Validation("name", "is required")
	}
	if strings.TrimSpace(i.Category) == "" {
		return Validation("category", "is required")
	}
	return nil
}

// Colors returns the non-empty colors of the item in lower case.
func (i WardrobeItem) Colors() []string {
	out := make([]string, 0, 2)
	for _, c := range []string{i.ColorPrimary, i.ColorSecondary} {
		if c = normalizeTag(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Summary projects the item into the cross-service wardrobe view.
func (i WardrobeItem) Summary() WardrobeSummary {
	return WardrobeSummary{
		ID:             i.ID,
		Name:           i.Name,
		Category:       i.Category,
		ColorPrimary:   i.ColorPrimary,
		ColorSecondary: i.ColorSecondary,
		Favorite:       i.Favorite,
		WearCount:      i.WearCount,
	}
}

// ItemPatch is a partial update of a wardrobe item.
type ItemPatch struct {
	Name           *string
	Category       *string
	Subcategory    *string
	Brand          *string
	ColorPrimary   *string
	ColorSecondary *string
	Size           *string
	Season         *string
	OccasionTags   *[]string
	Favorite       *bool
}

// Apply assigns every set field onto the item.
func (p ItemPatch) Apply(i *WardrobeItem) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&i.Name, p.Name)
	set(&i.Category, p.Category)
	set(&i.Subcategory, p.Subcategory)
	set(&i.Brand, p.Brand)
	set(&i.ColorPrimary, p.ColorPrimary)
	set(&i.ColorSecondary, p.ColorSecondary)
	set(&i.Size, p.Size)
	set(&i.Season, p.Season)
	if p.OccasionTags != nil {
		i.OccasionTags = append([]string(nil), (*p.OccasionTags)...)
	}
	if p.Favorite != nil {
		i.Favorite = *p.Favorite
	}
}

// ItemFilter narrows a wardrobe listing.
type ItemFilter struct {
	Category string
	Color    string
	Favorite *bool
}

// ContentHash returns the hex SHA-256 digest of image bytes.
func ContentHash(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// ImageAnalysis is the visual analysis of one image, unique per user and content hash.
type ImageAnalysis struct {
	ID               string
	UserID           string
	ContentHash      string
	ImageURL         string
	DetectedCategory string
	DominantColors   []string
	Patterns         []string
	StyleTags        []string
	ConfidenceScore  float64
	AnalysisVersion  string
	CreatedAt        time.Time
}

// ImageFeatures is the output of an image analyzer.
type ImageFeatures struct {
	Category   string
	Colors     []string
	Patterns   []string
	StyleTags  []string
	Confidence float64
	Version    string
}

// OutfitSlots partitions the items of an outfit by body slot.
type OutfitSlots struct {
	Top         string   `json:"top,omitempty"`
	Bottom      string   `json:"bottom,omitempty"`
	Dress       string   `json:"dress,omitempty"`
	Outerwear   string   `json:"outerwear,omitempty"`
	Shoes       string   `json:"shoes,omitempty"`
	Accessories []string `json:"accessories,omitempty"`
}

// Validate enforces that exactly one of {top and bottom} or {dress} is populated.
func (s OutfitSlots) Validate() error {
	hasTop := s.Top != ""
	hasBottom := s.Bottom != ""
	hasDress := s.Dress != ""

	switch {
	case hasDress && (hasTop || hasBottom):
		return NewError(KindValidation, "invalid_outfit_slots", "an outfit uses either a dress or a top and bottom, not both")
	case hasDress:
		return nil
	case hasTop && hasBottom:
		return nil
	case hasTop || hasBottom:
		return NewError(KindValidation, "invalid_outfit_slots", "top and bottom must be provided together")
	default:
		return NewError(KindValidation, "invalid_outfit_slots", "an outfit needs a dress or a top and bottom")
	}
}

// ItemIDs lists every referenced item once, in slot order.
func (s OutfitSlots) ItemIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, id := range append([]string{s.Top, s.Bottom, s.Dress, s.Outerwear, s.Shoes}, s.Accessories...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// OutfitComposition is a named outfit built from the user's own items.
type OutfitComposition struct {
	ID        string
	UserID    string
	Name      string
	Occasion  string
	Season    string
	Slots     OutfitSlots
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection is a user-curated group of wardrobe items.
type Collection struct {
	ID          string
	UserID      string
	Name        string
	Description string
	ItemIDs     []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WardrobeStats summarizes a user's wardrobe.
type WardrobeStats struct {
	TotalItems int            `json:"total_items"`
	Favorites  int            `json:"favorites"`
	NeverWorn  int            `json:"never_worn"`
	TotalWears int            `json:"total_wears"`
	ByCategory map[string]int `json:"by_category"`
	ByColor    map[string]int `json:"by_color"`
}

// ComputeWardrobeStats aggregates items into stats.
func ComputeWardrobeStats(items []WardrobeItem) WardrobeStats {
	stats := WardrobeStats{
		TotalItems: len(items),
		ByCategory: map[string]int{},
		ByColor:    map[string]int{},
	}
	for _, item := range items {
		if item.Favorite {
			stats.Favorites++
		}
		if item.WearCount == 0 {
			stats.NeverWorn++
		}
		stats.TotalWears += item.WearCount
		stats.ByCategory[normalizeTag(item.Category)]++
		if c := normalizeTag(item.ColorPrimary); c != "" {
			stats.ByColor[c]++
		}
	}
	return stats
}

// RankSimilar orders candidates by similarity to target: same category and
// shared colors score higher, ties broken by wear count. Items with no overlap
// and the target itself are dropped.
func RankSimilar(target WardrobeItem, candidates []WardrobeItem, limit int) []WardrobeItem {
	type scored struct {
		item  WardrobeItem
		score int
	}
	targetColors := target.Colors()
	var ranked []scored
	for _, c := range candidates {
		if c.ID == target.ID {
			continue
		}
		score := 0
		if normalizeTag(c.Category) == normalizeTag(target.Category) {
			score += 2
		}
		for _, color := range c.Colors() {
			for _, tc := range targetColors {
				if color == tc {
					score++
				}
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{item: c, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.WearCount > ranked[j].item.WearCount
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]WardrobeItem, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.item)
	}
	return out
}
