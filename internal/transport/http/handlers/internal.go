package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// InternalIdentityHandler serves service-to-service identity endpoints. Every
// route sits behind RequireService.
type InternalIdentityHandler struct {
	audit *usecase.AuditService
	users *usecase.UserService
}

// NewInternalIdentityHandler constructs an InternalIdentityHandler.
func NewInternalIdentityHandler(audit *usecase.AuditService, users *usecase.UserService) *InternalIdentityHandler {
	return &InternalIdentityHandler{audit: audit, users: users}
}

// RegisterRoutes binds the internal routes.
func (h *InternalIdentityHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/audit-events", h.IngestAudit)
	r.GET("/users/:id/status", h.UserStatus)
}

// IngestAudit stores an audit message from a sibling. A repeated idempotency
// key is accepted and stored once.
func (h *InternalIdentityHandler) IngestAudit(c *gin.Context) {
	var msg domain.AuditMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		respondBindError(c, err)
		return
	}
	if strings.TrimSpace(msg.Source) == "" {
		msg.Source = middleware.GetCallerService(c)
	}
	if err := h.audit.RecordAudit(c.Request.Context(), msg); err != nil {
		RespondError(c, err)
		return
	}
	logger.WithContext(c.Request.Context()).Debug("audit event ingested",
		zap.String("caller", middleware.GetCallerService(c)),
		zap.String("event_type", string(msg.EventType)),
	)
	c.JSON(http.StatusAccepted, MessageResponse{Message: "accepted"})
}

// UserStatus reports whether an account is active and unlocked.
func (h *InternalIdentityHandler) UserStatus(c *gin.Context) {
	status, err := h.users.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// FragmentProvider returns the export fragment a service owns for a user.
type FragmentProvider interface {
	ExportFragment(ctx context.Context, userID string) (domain.ExportFragment, error)
}

// FragmentHandler serves GET /internal/export/:user_id for the export worker.
type FragmentHandler struct {
	provider FragmentProvider
}

// NewFragmentHandler constructs a FragmentHandler.
func NewFragmentHandler(provider FragmentProvider) *FragmentHandler {
	return &FragmentHandler{provider: provider}
}

// RegisterRoutes binds the fragment route.
func (h *FragmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/export/:user_id", h.Fragment)
}

// Fragment returns the user's fragment.
func (h *FragmentHandler) Fragment(c *gin.Context) {
	fragment, err := h.provider.ExportFragment(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fragment": fragment})
}
