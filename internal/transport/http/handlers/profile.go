package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// ProfileHandler serves the caller's profile, analytics and account deletion.
type ProfileHandler struct {
	users    *usecase.UserService
	accounts *usecase.AccountService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(users *usecase.UserService, accounts *usecase.AccountService) *ProfileHandler {
	return &ProfileHandler{users: users, accounts: accounts}
}

// RegisterRoutes binds profile routes; the group must already require a user.
func (h *ProfileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)
	r.GET("/profile/analytics", h.Analytics)
	r.POST("/delete-account", h.DeleteAccount)
}

// GetProfile returns the caller's profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(c.Request.Context(), userID, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Message: "profile retrieved", Profile: user.Snapshot(), User: newUserResponse(*user)})
}

// UpdateProfile applies a partial update.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), userID, req.patch(), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Message: "profile updated", Profile: user.Snapshot(), User: newUserResponse(*user)})
}

// Analytics returns the per-user aggregate.
func (h *ProfileHandler) Analytics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	a, err := h.users.Analytics(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnalyticsResponse{
		Message:          "analytics retrieved",
		LoginCount:       a.LoginCount,
		LastLoginAt:      a.LastLoginAt,
		ExportsRequested: a.ExportsRequested,
		PrivacyChanges:   a.PrivacyChanges,
	})
}

// DeleteAccount deactivates the account; it can be reactivated by logging in
// within the grace period.
func (h *ProfileHandler) DeleteAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	res, err := h.accounts.Deactivate(c.Request.Context(), userID, req.Confirmation, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeactivateResponse{
		Message:          "account deactivated",
		DeactivatedAt:    res.DeactivatedAt,
		ReactivableUntil: res.ReactivableUntil,
		SessionsRevoked:  res.SessionsRevoked,
	})
}
