package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// StyleProfileResponse is the learned style state plus whether it is strong
// enough to personalize suggestions.
type StyleProfileResponse struct {
	Message              string             `json:"message"`
	PrimaryStyle         string             `json:"primary_style"`
	PreferredColors      map[string]float64 `json:"preferred_colors"`
	AvoidedColors        map[string]float64 `json:"avoided_colors"`
	PreferredCategories  map[string]float64 `json:"preferred_categories"`
	AvoidedCategories    map[string]float64 `json:"avoided_categories"`
	ConfidenceScore      float64            `json:"confidence_score"`
	LearningDataPoints   int                `json:"learning_data_points"`
	AutoLearnEnabled     bool               `json:"auto_learn_enabled"`
	PersonalizationReady bool               `json:"personalization_ready"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

func newStyleProfileResponse(p domain.StyleProfile) StyleProfileResponse {
	return StyleProfileResponse{
		PrimaryStyle:         p.PrimaryStyle,
		PreferredColors:      p.PreferredColors,
		AvoidedColors:        p.AvoidedColors,
		PreferredCategories:  p.PreferredCategories,
		AvoidedCategories:    p.AvoidedCategories,
		ConfidenceScore:      p.ConfidenceScore,
		LearningDataPoints:   p.LearningDataPoints,
		AutoLearnEnabled:     p.AutoLearnEnabled,
		PersonalizationReady: p.PersonalizationReady(),
		UpdatedAt:            p.UpdatedAt,
	}
}

// StyleAnalysisResponse is one run of the style inferencer.
type StyleAnalysisResponse struct {
	Message         string             `json:"message,omitempty"`
	ID              string             `json:"id"`
	PrimaryStyle    string             `json:"primary_style"`
	StyleScores     map[string]float64 `json:"style_scores"`
	ColorPalette    []string           `json:"color_palette"`
	Recommendations []string           `json:"recommendations"`
	Confidence      float64            `json:"confidence"`
	WardrobeSize    int                `json:"wardrobe_size"`
	CreatedAt       time.Time          `json:"created_at"`
}

func newStyleAnalysisResponse(a domain.StyleAnalysis) StyleAnalysisResponse {
	return StyleAnalysisResponse{
		ID:              a.ID,
		PrimaryStyle:    a.PrimaryStyle,
		StyleScores:     a.StyleScores,
		ColorPalette:    a.ColorPalette,
		Recommendations: a.Recommendations,
		Confidence:      a.Confidence,
		WardrobeSize:    a.WardrobeSize,
		CreatedAt:       a.CreatedAt,
	}
}

// SuggestionRequest asks for an outfit.
type SuggestionRequest struct {
	Occasion string `json:"occasion"`
	Weather  string `json:"weather"`
}

// SuggestionResponse is a generated outfit.
type SuggestionResponse struct {
	Message      string    `json:"message"`
	ID           string    `json:"id"`
	Occasion     string    `json:"occasion"`
	Weather      string    `json:"weather"`
	ItemIDs      []string  `json:"item_ids"`
	Colors       []string  `json:"colors"`
	Categories   []string  `json:"categories"`
	StyleScore   float64   `json:"style_score"`
	Personalized bool      `json:"personalized"`
	Explanation  string    `json:"explanation"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedbackRequest rates a suggestion.
type FeedbackRequest struct {
	Rating          int      `json:"rating" binding:"required"`
	LikedAspects    []string `json:"liked_aspects"`
	DislikedAspects []string `json:"disliked_aspects"`
	Comment         string   `json:"comment"`
}

// TrendForecastResponse wraps a forecast with the response message.
type TrendForecastResponse struct {
	Message string `json:"message"`
	domain.TrendForecast
}

// StylingHandler exposes the styling service.
type StylingHandler struct {
	styling *usecase.StylingService
}

// NewStylingHandler constructs a StylingHandler.
func NewStylingHandler(styling *usecase.StylingService) *StylingHandler {
	return &StylingHandler{styling: styling}
}

// RegisterRoutes binds styling routes; the group must already require a user.
func (h *StylingHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.Profile)
	r.POST("/analyze", h.Analyze)
	r.GET("/analyses", h.Analyses)
	r.POST("/suggestions", h.Suggest)
	r.POST("/suggestions/:id/feedback", h.Feedback)
	r.GET("/trends", h.Trends)
}

func (h *StylingHandler) Profile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.styling.Profile(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newStyleProfileResponse(*p)
	resp.Message = "style profile retrieved"
	c.JSON(http.StatusOK, resp)
}

// Analyze runs the inferencer over the caller's profile and wardrobe.
func (h *StylingHandler) Analyze(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	a, err := h.styling.Analyze(c.Request.Context(), userID, middleware.GetBearerToken(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newStyleAnalysisResponse(*a)
	resp.Message = "analysis completed"
	c.JSON(http.StatusCreated, resp)
}

func (h *StylingHandler) Analyses(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.styling.ListAnalyses(c.Request.Context(), userID, queryInt(c, "limit", 10))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]StyleAnalysisResponse, 0, len(list))
	for _, a := range list {
		resp = append(resp, newStyleAnalysisResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"message": "analyses retrieved", "analyses": resp})
}

// Suggest generates an outfit, personalized once the profile is confident enough.
func (h *StylingHandler) Suggest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SuggestionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	s, err := h.styling.Suggest(c.Request.Context(), userID, middleware.GetBearerToken(c),
		strings.TrimSpace(req.Occasion), strings.TrimSpace(req.Weather))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuggestionResponse{
		Message:      "suggestion generated",
		ID:           s.ID,
		Occasion:     s.Occasion,
		Weather:      s.Weather,
		ItemIDs:      s.ItemIDs,
		Colors:       s.Colors,
		Categories:   s.Categories,
		StyleScore:   s.StyleScore,
		Personalized: s.Personalized,
		Explanation:  s.Explanation,
		CreatedAt:    s.CreatedAt,
	})
}

// Feedback folds a rating into the learned profile.
func (h *StylingHandler) Feedback(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := h.styling.SubmitFeedback(c.Request.Context(), userID, c.Param("id"), usecase.FeedbackInput{
		Rating:          req.Rating,
		LikedAspects:    req.LikedAspects,
		DislikedAspects: req.DislikedAspects,
		Comment:         req.Comment,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newStyleProfileResponse(*p)
	resp.Message = "feedback recorded"
	c.JSON(http.StatusOK, resp)
}

func (h *StylingHandler) Trends(c *gin.Context) {
	forecast, err := h.styling.Trends(c.Request.Context(), c.Query("season"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TrendForecastResponse{Message: "trends retrieved", TrendForecast: *forecast})
}
