package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// PostRequest is the payload for a new post.
type PostRequest struct {
	Caption    string                `json:"caption"`
	ImageURL   string                `json:"image_url"`
	OutfitID   *string               `json:"outfit_id"`
	Tags       []string              `json:"tags"`
	Visibility domain.PostVisibility `json:"visibility"`
}

// PostResponse is a post with its engagement counters.
type PostResponse struct {
	Message       string                `json:"message,omitempty"`
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	Caption       string                `json:"caption"`
	ImageURL      string                `json:"image_url,omitempty"`
	OutfitID      *string               `json:"outfit_id,omitempty"`
	Tags          []string              `json:"tags"`
	Visibility    domain.PostVisibility `json:"visibility"`
	LikesCount    int                   `json:"likes_count"`
	CommentsCount int                   `json:"comments_count"`
	SharesCount   int                   `json:"shares_count"`
	SavesCount    int                   `json:"saves_count"`
	CreatedAt     time.Time             `json:"created_at"`
}

func newPostResponse(p domain.StylePost) PostResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PostResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		Caption:       p.Caption,
		ImageURL:      p.ImageURL,
		OutfitID:      p.OutfitID,
		Tags:          tags,
		Visibility:    p.Visibility,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		SavesCount:    p.SavesCount,
		CreatedAt:     p.CreatedAt,
	}
}

// CommentRequest is the payload for a new comment.
type CommentRequest struct {
	Body     string  `json:"body" binding:"required"`
	ParentID *string `json:"parent_id"`
}

// CommentResponse is a stored comment.
type CommentResponse struct {
	Message   string    `json:"message,omitempty"`
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentResponse(cm domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        cm.ID,
		PostID:    cm.PostID,
		UserID:    cm.UserID,
		ParentID:  cm.ParentID,
		Body:      cm.Body,
		CreatedAt: cm.CreatedAt,
	}
}

// ShareRequest names the platform a post is shared to.
type ShareRequest struct {
	Platform string `json:"platform" binding:"required"`
	Message  string `json:"message"`
}

// ShareResponse is a recorded share.
type ShareResponse struct {
	Message      string    `json:"message"`
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	Platform     string    `json:"platform"`
	ShareMessage string    `json:"share_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotificationResponse is a notification in the inbox.
type NotificationResponse struct {
	ID         string                  `json:"id"`
	SenderID   *string                 `json:"sender_id,omitempty"`
	Kind       domain.NotificationKind `json:"kind"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	EntityType string                  `json:"entity_type,omitempty"`
	EntityID   string                  `json:"entity_id,omitempty"`
	Read       bool                    `json:"read"`
	ReadAt     *time.Time              `json:"read_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// CommunityRequest is the payload for a new community.
type CommunityRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsPrivate   bool   `json:"is_private"`
}

// CommunityResponse is a community with its member count.
type CommunityResponse struct {
	Message      string    `json:"message,omitempty"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	OwnerID      string    `json:"owner_id"`
	IsPrivate    bool      `json:"is_private"`
	MembersCount int       `json:"members_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func newCommunityResponse(cm domain.Community) CommunityResponse {
	return CommunityResponse{
		ID:           cm.ID,
		Name:         cm.Name,
		Description:  cm.Description,
		Category:     cm.Category,
		OwnerID:      cm.OwnerID,
		IsPrivate:    cm.IsPrivate,
		MembersCount: cm.MembersCount,
		CreatedAt:    cm.CreatedAt,
	}
}

// EventRequest is the payload for a new event.
type EventRequest struct {
	CommunityID *string    `json:"community_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	Capacity    int        `json:"capacity"`
}

// EventResponse is an event with its attendee count.
type EventResponse struct {
	Message       string     `json:"message,omitempty"`
	ID            string     `json:"id"`
	CommunityID   *string    `json:"community_id,omitempty"`
	OrganizerID   string     `json:"organizer_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	StartsAt      time.Time  `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	Capacity      int        `json:"capacity"`
	AttendeeCount int        `json:"attendee_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:            e.ID,
		CommunityID:   e.CommunityID,
		OrganizerID:   e.OrganizerID,
		Title:         e.Title,
		Description:   e.Description,
		Location:      e.Location,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		Capacity:      e.Capacity,
		AttendeeCount: e.AttendeeCount,
		CreatedAt:     e.CreatedAt,
	}
}

// SocialHandler exposes posts, engagement, notifications, communities and events.
type SocialHandler struct {
	social *usecase.SocialService
}

// NewSocialHandler constructs a SocialHandler.
func NewSocialHandler(social *usecase.SocialService) *SocialHandler {
	return &SocialHandler{social: social}
}

// RegisterRoutes binds social routes; the group must already require a user.
func (h *SocialHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/posts", h.Feed)
	r.POST("/posts", h.CreatePost)
	r.GET("/posts/:id", h.GetPost)
	r.DELETE("/posts/:id", h.DeletePost)
	r.POST("/posts/:id/like", h.Like)
	r.DELETE("/posts/:id/like", h.Unlike)
	r.POST("/posts/:id/save", h.Save)
	r.DELETE("/posts/:id/save", h.Unsave)
	r.GET("/posts/:id/comments", h.ListComments)
	r.POST("/posts/:id/comment", h.Comment)
	r.DELETE("/comments/:id", h.DeleteComment)
	r.POST("/posts/:id/share", h.Share)

	r.GET("/notifications", h.Notifications)
	r.POST("/notifications/read-all", h.MarkAllRead)
	r.POST("/notifications/:id/read", h.MarkRead)

	r.GET("/communities", h.ListCommunities)
	r.POST("/communities", h.CreateCommunity)
	r.GET("/communities/:id", h.GetCommunity)
	r.POST("/communities/:id/join", h.JoinCommunity)
	r.DELETE("/communities/:id/join", h.LeaveCommunity)

	r.GET("/events", h.ListEvents)
	r.POST("/events", h.CreateEvent)
	r.GET("/events/:id", h.GetEvent)
	r.POST("/events/:id/rsvp", h.RSVP)
}

// Feed returns public posts and the viewer's own, newest first.
func (h *SocialHandler) Feed(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	posts, err := h.social.Feed(c.Request.Context(), userID, feedPage(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "feed retrieved", "posts": newPostList(posts)})
}

func newPostList(posts []domain.StylePost) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, newPostResponse(p))
	}
	return out
}

func (h *SocialHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	post, err := h.social.CreatePost(c.Request.Context(), userID, usecase.PostInput{
		Caption:    req.Caption,
		ImageURL:   req.ImageURL,
		OutfitID:   req.OutfitID,
		Tags:       req.Tags,
		Visibility: req.Visibility,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newPostResponse(*post)
	resp.Message = "post created"
	c.JSON(http.StatusCreated, resp)
}

func (h *SocialHandler) GetPost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	post, err := h.social.GetPost(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newPostResponse(*post)
	resp.Message = "post retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *SocialHandler) DeletePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.social.DeletePost(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "post deleted"})
}

type engagementFunc func(c *gin.Context, userID, postID string) (*domain.StylePost, error)

// engage runs a like/save style toggle and returns the updated counters.
func (h *SocialHandler) engage(c *gin.Context, message string, fn engagementFunc) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	post, err := fn(c, userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newPostResponse(*post)
	resp.Message = message
	c.JSON(http.StatusOK, resp)
}

// Like adds the caller's like. Liking twice is a 400 already_liked.
func (h *SocialHandler) Like(c *gin.Context) {
	h.engage(c, "post liked", func(c *gin.Context, userID, postID string) (*domain.StylePost, error) {
		return h.social.Like(c.Request.Context(), userID, postID)
	})
}

func (h *SocialHandler) Unlike(c *gin.Context) {
	h.engage(c, "post unliked", func(c *gin.Context, userID, postID string) (*domain.StylePost, error) {
		return h.social.Unlike(c.Request.Context(), userID, postID)
	})
}

func (h *SocialHandler) Save(c *gin.Context) {
	h.engage(c, "post saved", func(c *gin.Context, userID, postID string) (*domain.StylePost, error) {
		return h.social.Save(c.Request.Context(), userID, postID)
	})
}

func (h *SocialHandler) Unsave(c *gin.Context) {
	h.engage(c, "post unsaved", func(c *gin.Context, userID, postID string) (*domain.StylePost, error) {
		return h.social.Unsave(c.Request.Context(), userID, postID)
	})
}

func (h *SocialHandler) ListComments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	comments, err := h.social.ListComments(c.Request.Context(), userID, c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]CommentResponse, 0, len(comments))
	for _, cm := range comments {
		resp = append(resp, newCommentResponse(cm))
	}
	c.JSON(http.StatusOK, gin.H{"message": "comments retrieved", "comments": resp})
}

func (h *SocialHandler) Comment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	cm, err := h.social.Comment(c.Request.Context(), userID, c.Param("id"), req.Body, req.ParentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCommentResponse(*cm)
	resp.Message = "comment added"
	c.JSON(http.StatusCreated, resp)
}

func (h *SocialHandler) DeleteComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.social.DeleteComment(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "comment deleted"})
}

func (h *SocialHandler) Share(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	share, err := h.social.Share(c.Request.Context(), userID, c.Param("id"), req.Platform, req.Message)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ShareResponse{
		Message:      "post shared",
		ID:           share.ID,
		PostID:       share.PostID,
		Platform:     share.Platform,
		ShareMessage: share.Message,
		CreatedAt:    share.CreatedAt,
	})
}

// Notifications lists the caller's inbox; ?unread=true hides read entries.
func (h *SocialHandler) Notifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	unread := queryBool(c, "unread")
	list, err := h.social.Notifications(c.Request.Context(), userID, unread != nil && *unread, feedPage(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, NotificationResponse{
			ID:         n.ID,
			SenderID:   n.SenderID,
			Kind:       n.Kind,
			Title:      n.Title,
			Message:    n.Message,
			EntityType: n.EntityType,
			EntityID:   n.EntityID,
			Read:       n.Read,
			ReadAt:     n.ReadAt,
			CreatedAt:  n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "notifications retrieved", "notifications": resp})
}

func (h *SocialHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.social.MarkNotificationRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "notification marked as read"})
}

func (h *SocialHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.social.MarkAllNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notifications marked as read", "marked": n})
}

func (h *SocialHandler) ListCommunities(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	list, err := h.social.ListCommunities(c.Request.Context(), feedPage(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]CommunityResponse, 0, len(list))
	for _, cm := range list {
		resp = append(resp, newCommunityResponse(cm))
	}
	c.JSON(http.StatusOK, gin.H{"message": "communities retrieved", "communities": resp})
}

func (h *SocialHandler) CreateCommunity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	cm, err := h.social.CreateCommunity(c.Request.Context(), userID, usecase.CommunityInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCommunityResponse(*cm)
	resp.Message = "community created"
	c.JSON(http.StatusCreated, resp)
}

func (h *SocialHandler) GetCommunity(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	cm, err := h.social.GetCommunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCommunityResponse(*cm)
	resp.Message = "community retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *SocialHandler) JoinCommunity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cm, err := h.social.JoinCommunity(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newCommunityResponse(*cm)
	resp.Message = "joined community"
	c.JSON(http.StatusOK, resp)
}

func (h *SocialHandler) LeaveCommunity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.social.LeaveCommunity(c.Request.Context(), userID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "left community"})
}

func (h *SocialHandler) ListEvents(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	list, err := h.social.ListEvents(c.Request.Context(), feedPage(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := make([]EventResponse, 0, len(list))
	for _, e := range list {
		resp = append(resp, newEventResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"message": "events retrieved", "events": resp})
}

func (h *SocialHandler) CreateEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	e, err := h.social.CreateEvent(c.Request.Context(), userID, usecase.EventInput{
		CommunityID: req.CommunityID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newEventResponse(*e)
	resp.Message = "event created"
	c.JSON(http.StatusCreated, resp)
}

func (h *SocialHandler) GetEvent(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	e, err := h.social.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newEventResponse(*e)
	resp.Message = "event retrieved"
	c.JSON(http.StatusOK, resp)
}

// RSVP registers the caller; a full event answers 409 event_full.
func (h *SocialHandler) RSVP(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	e, err := h.social.RSVP(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newEventResponse(*e)
	resp.Message = "rsvp recorded"
	c.JSON(http.StatusOK, resp)
}

// NotificationSinkHandler accepts notifications from sibling services over HTTP
// when no broker is configured.
type NotificationSinkHandler struct {
	social *usecase.SocialService
}

// NewNotificationSinkHandler constructs a NotificationSinkHandler.
func NewNotificationSinkHandler(social *usecase.SocialService) *NotificationSinkHandler {
	return &NotificationSinkHandler{social: social}
}

// RegisterRoutes binds the internal notification route.
func (h *NotificationSinkHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notifications", h.Publish)
}

func (h *NotificationSinkHandler) Publish(c *gin.Context) {
	var msg domain.NotificationMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.social.PublishNotification(c.Request.Context(), msg); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{Message: "accepted"})
}
