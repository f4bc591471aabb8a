package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for authenticated user ID
	UserIDKey = "user_id"
	// TokenKey is the context key for the verified bearer token
	TokenKey = "bearer_token"
	// SessionIDKey is the context key for the session behind the bearer token
	SessionIDKey = "session_id"
	// ServiceKey is the context key for the calling service on internal routes
	ServiceKey = "caller_service"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	RequestID string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext adds trace ID and request context to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(logger.ContextWithIDs(c.Request.Context(), "", traceID))

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// AuditContext captures the caller details stored on audit and data-access rows.
func AuditContext(c *gin.Context) domain.RequestContext {
	rc := GetRequestContext(c)
	ip := rc.IP
	if ip == "" {
		ip = c.ClientIP()
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	return domain.RequestContext{
		IPAddress: ip,
		UserAgent: c.Request.UserAgent(),
		Endpoint:  endpoint,
		Method:    c.Request.Method,
		RequestID: logger.RequestIDFromContext(c.Request.Context()),
	}
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// GetBearerToken returns the verified bearer token, for forwarding to peers.
func GetBearerToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}

// GetSessionID returns the session bound to the verified bearer token.
func GetSessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

// GetCallerService returns the service named by a verified service token.
func GetCallerService(c *gin.Context) string {
	return c.GetString(ServiceKey)
}
