package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// SettingsHandler serves privacy and security settings. Both are created with
// defaults on first read.
type SettingsHandler struct {
	settings *usecase.SettingsService
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(settings *usecase.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// RegisterRoutes binds settings routes; the group must already require a user.
func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/privacy-settings", h.GetPrivacy)
	r.PUT("/privacy-settings", h.UpdatePrivacy)
	r.GET("/security-settings", h.GetSecurity)
	r.PUT("/security-settings", h.UpdateSecurity)
}

func (h *SettingsHandler) GetPrivacy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	s, err := h.settings.GetPrivacySettings(c.Request.Context(), userID, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newPrivacyResponse(*s)
	resp.Message = "privacy settings retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) UpdatePrivacy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req PrivacySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, err := h.settings.UpdatePrivacySettings(c.Request.Context(), userID, req.patch(), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newPrivacyResponse(*s)
	resp.Message = "privacy settings updated"
	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) GetSecurity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	s, err := h.settings.GetSecuritySettings(c.Request.Context(), userID, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newSecurityResponse(*s)
	resp.Message = "security settings retrieved"
	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) UpdateSecurity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SecuritySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	s, err := h.settings.UpdateSecuritySettings(c.Request.Context(), userID, req.patch(), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newSecurityResponse(*s)
	resp.Message = "security settings updated"
	c.JSON(http.StatusOK, resp)
}
