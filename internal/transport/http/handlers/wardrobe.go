package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// WardrobeItemResponse is the item view. Its field names are a superset of
// the cross-service wardrobe summary.
type WardrobeItemResponse struct {
	Message        string     `json:"message,omitempty"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Subcategory    string     `json:"subcategory,omitempty"`
	Brand          string     `json:"brand,omitempty"`
	ColorPrimary   string     `json:"color_primary"`
	ColorSecondary string     `json:"color_secondary,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	ContentHash    string     `json:"content_hash,omitempty"`
	AnalysisID     *string    `json:"analysis_id,omitempty"`
	Size           string     `json:"size,omitempty"`
	Season         string     `json:"season,omitempty"`
	OccasionTags   []string   `json:"occasion_tags"`
	WearCount      int        `json:"wear_count"`
	LastWorn       *time.Time `json:"last_worn,omitempty"`
	Favorite       bool       `json:"favorite"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newItemResponse(i domain.WardrobeItem) WardrobeItemResponse {
	tags := i.OccasionTags
	if tags == nil {
		tags = []string{}
	}
	return WardrobeItemResponse{
		ID:             i.ID,
		Name:           i.Name,
		Category:       i.Category,
		Subcategory:    i.Subcategory,
		Brand:          i.Brand,
		ColorPrimary:   i.ColorPrimary,
		ColorSecondary: i.ColorSecondary,
		ImageURL:       i.ImageURL,
		ContentHash:    i.ContentHash,
		AnalysisID:     i.AnalysisID,
		Size:           i.Size,
		Season:         i.Season,
		OccasionTags:   tags,
		WearCount:      i.WearCount,
		LastWorn:       i.LastWorn,
		Favorite:       i.Favorite,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

func newItemList(items []domain.WardrobeItem) []WardrobeItemResponse {
	out := make([]WardrobeItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newItemResponse(item))
	}
	return out
}

// ImageAnalysisResponse is the stored visual analysis of an item image.
type ImageAnalysisResponse struct {
	ID               string    `json:"id"`
	ContentHash      string    `json:"content_hash"`
	DetectedCategory string    `json:"detected_category"`
	DominantColors   []string  `json:"dominant_colors"`
	Patterns         []string  `json:"patterns"`
	StyleTags        []string  `json:"style_tags"`
	ConfidenceScore  float64   `json:"confidence_score"`
	AnalysisVersion  string    `json:"analysis_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateItemRequest is the payload for a new item.
type CreateItemRequest struct {
	Name           string   `json:"name" binding:"required"`
	Category       string   `json:"category" binding:"required"`
	Subcategory    string   `json:"subcategory"`
	Brand          string   `json:"brand"`
	ColorPrimary   string   `json:"color_primary"`
	ColorSecondary string   `json:"color_secondary"`
	Size           string   `json:"size"`
	Season         string   `json:"season"`
	OccasionTags   []string `json:"occasion_tags"`
	Favorite       bool     `json:"favorite"`
	ImageBase64    string   `json:"image_base64"`
	ImageURL       string   `json:"image_url"`
	ImageSHA256    string   `json:"image_sha256"`
}

// CreateItemResponse carries the item and its analysis.
type CreateItemResponse struct {
	Message        string                 `json:"message"`
	Item           WardrobeItemResponse   `json:"item"`
	Analysis       *ImageAnalysisResponse `json:"analysis,omitempty"`
	AnalysisReused bool                   `json:"analysis_reused"`
}

type WardrobeStatsResponse struct {
	Message string `json:"message"`
	domain.WardrobeStats
}

// UpdateItemRequest is a partial item update.
type UpdateItemRequest struct {
	Name           *string   `json:"name"`
	Category       *string   `json:"category"`
	Subcategory    *string   `json:"subcategory"`
	Brand          *string   `json:"brand"`
	ColorPrimary   *string   `json:"color_primary"`
	ColorSecondary *string   `json:"color_secondary"`
	Size           *string   `json:"size"`
	Season         *string   `json:"season"`
	OccasionTags   *[]string `json:"occasion_tags"`
	Favorite       *bool     `json:"favorite"`
}

// OutfitRequest is the payload for a new outfit.
type OutfitRequest struct {
	Name     string             `json:"name" binding:"required"`
	Occasion string             `json:"occasion"`
	Season   string             `json:"season"`
	Items    domain.OutfitSlots `json:"items"`
}

// OutfitResponse is a stored outfit.
type OutfitResponse struct {
	Message   string             `json:"message,omitempty"`
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Occasion  string             `json:"occasion,omitempty"`
	Season    string             `json:"season,omitempty"`
	Items     domain.OutfitSlots `json:"items"`
	CreatedAt time.Time          `json:"created_at"`
}

func newOutfitResponse(o domain.OutfitComposition) OutfitResponse {
	return OutfitResponse{
		ID:        o.ID,
		Name:      o.Name,
		Occasion:  o.Occasion,
		Season:    o.Season,
		Items:     o.Slots,
		CreatedAt: o.CreatedAt,
	}
}

// CollectionRequest is the payload for a new collection.
type CollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CollectionResponse is a collection and the ids of its items.
type CollectionResponse struct {
	Message     string    `json:"message,omitempty"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ItemIDs     []string  `json:"item_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

func newCollectionResponse(col domain.Collection) CollectionResponse {
	ids := col.ItemIDs
	if ids == nil {
		ids = []string{}
	}
	return CollectionResponse{
		ID:          col.ID,
		Name:        col.Name,
		Description: col.Description,
		ItemIDs:     ids,
		CreatedAt:   col.CreatedAt,
	}
}

// WardrobeHandler exposes items, outfits and collections.
type WardrobeHandler struct {
	wardrobe *usecase.WardrobeService
}

// NewWardrobeHandler constructs a WardrobeHandler.
func NewWardrobeHandler(wardrobe *usecase.WardrobeService) *WardrobeHandler {
	return &WardrobeHandler{wardrobe: wardrobe}
}

// RegisterRoutes binds wardrobe routes; the group must already require a user.
func (h *WardrobeHandler) RegisterRoutes(r *gin.RouterGroup) {
	items := r.Group("/wardrobe")
	items.GET("/items", h.ListItems)
	items.POST("/items", h.CreateItem)
	items.GET("/items/:id", h.GetItem)
	items.PUT("/items/:id", h.UpdateItem)
	items.DELETE("/items/:id", h.DeleteItem)
	items.POST("/items/:id/wear", h.WearItem)
	items.POST("/items/:id/favorite", h.ToggleFavorite)
	items.GET("/items/:id/similar", h.SimilarItems)
	items.GET("/stats", h.Stats)

	r.GET("/outfits", h.ListOutfits)
	r.POST("/outfits", h.CreateOutfit)
	r.GET("/outfits/:id", h.GetOutfit)
	r.DELETE("/outfits/:id", h.DeleteOutfit)

	r.GET("/collections", h.ListCollections)
	r.POST("/collections", h.CreateCollection)
	r.DELETE("/collections/:id", h.DeleteCollection)
	r.POST("/collections/:id/items/:item_id", h.AddToCollection)
	r.DELETE("/collections/:id/items/:item_id", h.RemoveFromCollection)
}

// ListItems lists the caller's items, optionally filtered by ?category, ?color
// and ?favorite, capped by ?limit.
func (h *WardrobeHandler) ListItems(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.wardrobe.ListItems(c.Request.Context(), userID, domain.ItemFilter{
		Category: c.Query("category"),
		Color:    c.Query("color"),
		Favorite: queryBool(c, "favorite"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	if limit := queryInt(c, "limit", 0); limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"message": "items retrieved", "items": newItemList(items), "total": len(items)})
}

// CreateItem stores an item and analyzes its image, reusing an earlier
// analysis of identical bytes.
func (h *WardrobeHandler) CreateItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	res, err := h.wardrobe.CreateItem(c.Request.Context(), userID, usecase.ItemInput{
		Name:           req.Name,
		Category:       req.Category,
		Subcategory:    req.Subcategory,
		Brand:          req.Brand,
		ColorPrimary:   req.ColorPrimary,
		ColorSecondary: req.ColorSecondary,
		Size:           req.Size,
		Season:         req.Season,
		OccasionTags:   req.OccasionTags,
		Favorite:       req.Favorite,
		ImageBase64:    req.ImageBase64,
		ImageURL:       req.ImageURL,
		ImageSHA256:    req.ImageSHA256,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	resp := CreateItemResponse{Message: "item created", Item: newItemResponse(res.Item), AnalysisReused: res.AnalysisReused}
	if a := res.Analysis; a != nil {
		resp.Analysis = &ImageAnalysisResponse{
			ID:               a.ID,
			ContentHash:      a.ContentHash,
			DetectedCategory: a.DetectedCategory,
			DominantColors:   a.DominantColors,
			Patterns:         a.Patterns,
			StyleTags:        a.StyleTags,
			ConfidenceScore:  a.ConfidenceScore,
			AnalysisVersion:  a.AnalysisVersion,
			CreatedAt:        a.CreatedAt,
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *WardrobeHandler) GetItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	item, err := h.wardrobe.GetItem(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newItemResponse(*item)
	resp.Message = "item retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *WardrobeHandler) UpdateItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.wardrobe.UpdateItem(c.Request.Context(), userID, c.Param("id"), domain.ItemPatch{
		Name:           req.Name,
		Category:       req.Category,
		Subcategory:    req.Subcategory,
		Brand:          req.Brand,
		ColorPrimary:   req.ColorPrimary,
		ColorSecondary: req.ColorSecondary,
		Size:           req.Size,
		Season:         req.Season,
		OccasionTags:   req.OccasionTags,
		Favorite:       req.Favorite,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newItemResponse(*item)
	resp.Message = "item updated"
	c.JSON(http.StatusOK, resp)
}

func (h *WardrobeHandler) DeleteItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.wardrobe.DeleteItem(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "item deleted"})
}

// WearItem records one wear.
func (h *WardrobeHandler) WearItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	item, err := h.wardrobe.WearItem(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newItemResponse(*item)
	resp.Message = "wear recorded"
	c.JSON(http.StatusOK, resp)
}

func (h *WardrobeHandler) ToggleFavorite(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	item, err := h.wardrobe.ToggleFavorite(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newItemResponse(*item)
	resp.Message = "favorite updated"
	c.JSON(http.StatusOK, resp)
}

func (h *WardrobeHandler) SimilarItems(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.wardrobe.SimilarItems(c.Request.Context(), userID, c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "similar items retrieved", "items": newItemList(items)})
}

func (h *WardrobeHandler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.wardrobe.Stats(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, WardrobeStatsResponse{Message: "wardrobe stats retrieved", WardrobeStats: stats})
}

func (h *WardrobeHandler) ListOutfits(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	outfits, err := h.wardrobe.ListOutfits(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]OutfitResponse, 0, len(outfits))
	for _, o := range outfits {
		resp = append(resp, newOutfitResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"message": "outfits retrieved", "outfits": resp})
}

// CreateOutfit stores an outfit; it needs a dress or a top and bottom, all owned by the caller.
func (h *WardrobeHandler) CreateOutfit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req OutfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	o, err := h.wardrobe.CreateOutfit(c.Request.Context(), userID, usecase.OutfitInput{
		Name:     req.Name,
		Occasion: req.Occasion,
		Season:   req.Season,
		Slots:    req.Items,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newOutfitResponse(*o)
	resp.Message = "outfit created"
	c.JSON(http.StatusCreated, resp)
}

func (h *WardrobeHandler) GetOutfit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	o, err := h.wardrobe.GetOutfit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newOutfitResponse(*o)
	resp.Message = "outfit retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *WardrobeHandler) DeleteOutfit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.wardrobe.DeleteOutfit(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "outfit deleted"})
}

func (h *WardrobeHandler) ListCollections(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cols, err := h.wardrobe.ListCollections(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]CollectionResponse, 0, len(cols))
	for _, col := range cols {
		resp = append(resp, newCollectionResponse(col))
	}
	c.JSON(http.StatusOK, gin.H{"message": "collections retrieved", "collections": resp})
}

func (h *WardrobeHandler) CreateCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	col, err := h.wardrobe.CreateCollection(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCollectionResponse(*col)
	resp.Message = "collection created"
	c.JSON(http.StatusCreated, resp)
}

func (h *WardrobeHandler) DeleteCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.wardrobe.DeleteCollection(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "collection deleted"})
}

func (h *WardrobeHandler) AddToCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.wardrobe.AddToCollection(c.Request.Context(), userID, c.Param("id"), c.Param("item_id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "item added to collection"})
}

func (h *WardrobeHandler) RemoveFromCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.wardrobe.RemoveFromCollection(c.Request.Context(), userID, c.Param("id"), c.Param("item_id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "item removed from collection"})
}
