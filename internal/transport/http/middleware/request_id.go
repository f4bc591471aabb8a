package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
)

// RequestIDHeader carries the correlation id between services.
const RequestIDHeader = "X-Request-ID"

// RequestID injects a correlation identifier into the context and headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(RequestIDHeader, reqID)
		c.Request = c.Request.WithContext(logger.ContextWithIDs(c.Request.Context(), reqID, ""))
		GetRequestContext(c).RequestID = reqID

		c.Next()
	}
}
