package port

import (
	"context"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// StyleInferencer produces style analyses, outfit suggestions and trend forecasts.
type StyleInferencer interface {
	Analyze(ctx context.Context, input domain.StyleInput) (domain.StyleAnalysis, error)
	Suggest(ctx context.Context, input domain.StyleInput) (domain.OutfitSuggestion, error)
	Forecast(ctx context.Context, season string) (domain.TrendForecast, error)
}

// ImageAnalyzer extracts visual features from garment images.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image []byte, contentHash string) (domain.ImageFeatures, error)
}

// PaymentProcessor settles charges.
type PaymentProcessor interface {
	Charge(ctx context.Context, charge domain.PaymentCharge) (domain.PaymentOutcome, error)
}
