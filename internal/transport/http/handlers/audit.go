package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// AuditHandler serves the user-facing transparency logs. Reading either log is
// itself recorded as a data access.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes binds transparency routes; the group must already require a user.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-log", h.AuditLog)
	r.POST("/audit-log/:id/resolve", h.Resolve)
	r.GET("/data-access-log", h.DataAccessLog)
}

// AuditLog lists security events for the last ?days (1..90).
func (h *AuditHandler) AuditLog(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	log, err := h.audit.ListAudit(c.Request.Context(), userID, queryInt(c, "days", 0), c.Query("severity"), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	events := make([]AuditEventResponse, 0, len(log.Events))
	for _, e := range log.Events {
		events = append(events, AuditEventResponse{
			ID:              e.ID,
			EventType:       e.EventType,
			Severity:        e.Severity,
			Description:     e.Description,
			Source:          e.Source,
			IPAddress:       e.Context.IPAddress,
			UserAgent:       e.Context.UserAgent,
			Endpoint:        e.Context.Endpoint,
			Metadata:        e.Metadata,
			Resolved:        e.Resolved,
			ResolutionNotes: e.ResolutionNotes,
			CreatedAt:       e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, AuditLogResponse{Message: "audit log retrieved", Events: events, Summary: log.Summary})
}

// DataAccessLog lists data accesses for the last ?days (1..30).
func (h *AuditHandler) DataAccessLog(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	log, err := h.audit.ListDataAccess(c.Request.Context(), userID, queryInt(c, "days", 0), c.Query("data_type"), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	entries := make([]DataAccessEventResponse, 0, len(log.Events))
	for _, e := range log.Events {
		entries = append(entries, DataAccessEventResponse{
			ID:            e.ID,
			DataType:      e.DataType,
			AccessType:    e.AccessType,
			AccessedBy:    e.AccessedBy,
			Purpose:       e.Purpose,
			LegalBasis:    e.LegalBasis,
			RetentionDays: e.RetentionDays,
			IPAddress:     e.Context.IPAddress,
			CreatedAt:     e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, DataAccessLogResponse{Message: "data access log retrieved", AccessLogs: entries, Summary: log.Summary})
}

// Resolve marks one audit event as resolved.
func (h *AuditHandler) Resolve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ResolveAuditRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	if err := h.audit.Resolve(c.Request.Context(), userID, c.Param("id"), req.Notes); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "audit event resolved"})
}
