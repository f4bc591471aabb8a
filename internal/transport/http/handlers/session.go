package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// SessionHandler exposes the caller's active sessions.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds REST session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}
	r.GET("", h.ListSessions)
	r.DELETE("/:session_id", h.RevokeSession)
}

// ListSessions returns active sessions, flagging the one behind the current token.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}

	current := middleware.GetSessionID(c)
	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			ID:                s.ID,
			DeviceFingerprint: s.DeviceFingerprint,
			IPAddress:         s.IPAddress,
			UserAgent:         s.UserAgent,
			IssuedAt:          s.IssuedAt,
			ExpiresAt:         s.ExpiresAt,
			LastSeenAt:        s.LastSeenAt,
			Current:           s.ID == current,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "sessions retrieved", "sessions": resp})
}

// RevokeSession ends one of the caller's sessions.
func (h *SessionHandler) RevokeSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if err := h.sessions.RevokeSession(c.Request.Context(), userID, sessionID); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}
