package stub

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

const imageAnalysisVersion = "stub-1"

var (
	visionCategories = []string{"top", "bottom", "dress", "outerwear", "shoes", "accessory"}
	visionColors     = []string{"black", "white", "navy", "beige", "red", "olive", "pink", "grey"}
	visionPatterns   = []string{"solid", "striped", "floral", "checked"}
	visionStyles     = []string{"classic", "casual", "minimalist", "bohemian", "edgy", "romantic"}
)

// ImageAnalyzer derives features from the content hash, so re-analyzing the
// same bytes always yields the same result.
type ImageAnalyzer struct{}

// NewImageAnalyzer builds the hash-driven analyzer.
func NewImageAnalyzer() *ImageAnalyzer {
	return &ImageAnalyzer{}
}

// Analyze returns features for image identified by contentHash.
func (a *ImageAnalyzer) Analyze(ctx context.Context, image []byte, contentHash string) (domain.ImageFeatures, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageFeatures{}, err
	}
	if len(image) == 0 && contentHash == "" {
		return domain.ImageFeatures{}, domain.Validation("image", "is empty")
	}
	if contentHash == "" {
		contentHash = domain.ContentHash(image)
	}
	seed, err := hex.DecodeString(contentHash)
	if err != nil || len(seed) < 6 {
		return domain.ImageFeatures{}, fmt.Errorf("analyze image: invalid content hash %q", contentHash)
	}

	primary := visionColors[int(seed[1])%len(visionColors)]
	secondary := visionColors[int(seed[2])%len(visionColors)]
	colors := []string{primary}
	if secondary != primary {
		colors = append(colors, secondary)
	}

	return domain.ImageFeatures{
		Category:   visionCategories[int(seed[0])%len(visionCategories)],
		Colors:     colors,
		Patterns:   []string{visionPatterns[int(seed[3])%len(visionPatterns)]},
		StyleTags:  []string{visionStyles[int(seed[4])%len(visionStyles)]},
		Confidence: 0.75 + float64(seed[5]%21)/100,
		Version:    imageAnalysisVersion,
	}, nil
}

var _ port.ImageAnalyzer = (*ImageAnalyzer)(nil)
