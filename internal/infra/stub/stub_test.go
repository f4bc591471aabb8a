package stub

import (
	"context"
	"testing"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

func TestAnalyzePicksDominantStyle(t *testing.T) {
	inferencer := NewStyleInferencer()
	input := domain.StyleInput{
		Profile: domain.UserProfileSnapshot{ID: "u1", StylePreference: "romantic"},
		Wardrobe: []domain.WardrobeSummary{
			{ID: "1", Category: "dress", ColorPrimary: "pink"},
			{ID: "2", Category: "blouse", ColorPrimary: "white"},
			{ID: "3", Category: "boots", ColorPrimary: "black"},
		},
	}

	analysis, err := inferencer.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if analysis.PrimaryStyle != "romantic" {
		t.Fatalf("expected romantic, got %s (%v)", analysis.PrimaryStyle, analysis.StyleScores)
	}
	if analysis.Confidence <= 0 || analysis.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", analysis.Confidence)
	}
	if analysis.WardrobeSize != 3 || len(analysis.ColorPalette) == 0 {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
}

func TestSuggestHonorsLearnedAvoidance(t *testing.T) {
	inferencer := NewStyleInferencer()
	learned := domain.DefaultStyleProfile("u1", time.Time{})
	learned.ConfidenceScore = 0.5
	learned.AvoidedColors["red"] = 0.3
	learned.PreferredColors["navy"] = 0.9

	input := domain.StyleInput{
		Profile:  domain.UserProfileSnapshot{ID: "u1"},
		Learned:  learned,
		Occasion: "work",
		Wardrobe: []domain.WardrobeSummary{
			{ID: "a", Category: "top", ColorPrimary: "red", WearCount: 50},
			{ID: "b", Category: "top", ColorPrimary: "navy"},
			{ID: "c", Category: "bottom", ColorPrimary: "grey"},
		},
	}

	suggestion, err := inferencer.Suggest(context.Background(), input)
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if !suggestion.Personalized {
		t.Fatalf("expected personalized suggestion")
	}
	for _, id := range suggestion.ItemIDs {
		if id == "a" {
			t.Fatalf("avoided color should be skipped, got %v", suggestion.ItemIDs)
		}
	}
	if len(suggestion.ItemIDs) != 2 || suggestion.ItemIDs[0] != "b" {
		t.Fatalf("expected preferred navy top first, got %v", suggestion.ItemIDs)
	}

	learned.ConfidenceScore = 0.1
	input.Learned = learned
	generic, _ := inferencer.Suggest(context.Background(), input)
	if generic.Personalized || generic.ItemIDs[0] != "a" {
		t.Fatalf("expected generic suggestion led by most worn item, got %+v", generic)
	}
}

func TestSuggestEmptyWardrobe(t *testing.T) {
	suggestion, err := NewStyleInferencer().Suggest(context.Background(), domain.StyleInput{})
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if len(suggestion.ItemIDs) != 0 || len(suggestion.Colors) == 0 || suggestion.Explanation == "" {
		t.Fatalf("unexpected empty-wardrobe suggestion %+v", suggestion)
	}
}

func TestForecastFallsBackToWinter(t *testing.T) {
	forecast, err := NewStyleInferencer().Forecast(context.Background(), "monsoon")
	if err != nil {
		t.Fatalf("Forecast returned error: %v", err)
	}
	if forecast.Season != "winter" || len(forecast.Trends) != 3 {
		t.Fatalf("unexpected forecast %+v", forecast)
	}
}

func TestImageAnalyzerIsDeterministic(t *testing.T) {
	analyzer := NewImageAnalyzer()
	image := []byte("fake-jpeg-bytes")
	hash := domain.ContentHash(image)

	first, err := analyzer.Analyze(context.Background(), image, hash)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	second, _ := analyzer.Analyze(context.Background(), nil, hash)
	if first.Category != second.Category || first.Colors[0] != second.Colors[0] || first.Confidence != second.Confidence {
		t.Fatalf("expected identical features, got %+v and %+v", first, second)
	}
	if first.Confidence < 0.75 || first.Confidence > 0.95 {
		t.Fatalf("confidence out of range: %v", first.Confidence)
	}

	if _, err := analyzer.Analyze(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestPaymentProcessorOutcomes(t *testing.T) {
	processor := NewPaymentProcessor()
	cases := []struct {
		charge domain.PaymentCharge
		status domain.TransactionStatus
		reason string
	}{
		{domain.PaymentCharge{Method: domain.MethodCard, Amount: 49.5}, domain.TransactionCompleted, ""},
		{domain.PaymentCharge{Method: domain.MethodUPI, Amount: 13.13}, domain.TransactionFailed, "card_declined"},
		{domain.PaymentCharge{Method: "cheque", Amount: 10}, domain.TransactionFailed, "unsupported_method"},
		{domain.PaymentCharge{Method: domain.MethodCard, Amount: 0}, domain.TransactionFailed, "invalid_amount"},
	}
	for _, tc := range cases {
		outcome, err := processor.Charge(context.Background(), tc.charge)
		if err != nil {
			t.Fatalf("Charge returned error: %v", err)
		}
		if outcome.Status != tc.status || outcome.FailureReason != tc.reason {
			t.Fatalf("charge %+v: expected %s/%s, got %+v", tc.charge, tc.status, tc.reason, outcome)
		}
		if len(outcome.ProcessorRef) <= 3 {
			t.Fatalf("expected processor reference, got %q", outcome.ProcessorRef)
		}
	}
}
