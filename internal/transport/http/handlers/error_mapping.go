package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

// Conflicts that clients treat as a bad request rather than a state clash.
var badRequestConflicts = map[string]bool{
	"export_pending": true,
	"already_liked":  true,
	"already_saved":  true,
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:        http.StatusBadRequest,
	domain.KindAuthMissing:       http.StatusUnauthorized,
	domain.KindAuthInvalid:       http.StatusUnauthorized,
	domain.KindAuthUnavailable:   http.StatusServiceUnavailable,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindConflict:          http.StatusConflict,
	domain.KindGone:              http.StatusGone,
	domain.KindDependencyTimeout: http.StatusGatewayTimeout,
	domain.KindTimeout:           http.StatusGatewayTimeout,
	domain.KindRateLimited:       http.StatusTooManyRequests,
}

// RespondError writes the classified error body for err. Unclassified errors
// are logged with the trace id and surface as a generic internal error.
func RespondError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var limited *usecase.RateLimitExceededError
	if errors.As(err, &limited) {
		retry := int(math.Ceil(limited.RetryAfter.Seconds()))
		if retry > 0 {
			c.Header("Retry-After", strconv.Itoa(retry))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error:      "rate_limited",
			Message:    limited.Error(),
			TraceID:    traceID(c),
			RetryAfter: retry,
		})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, NewErrorResponse(c, "request_timeout", "request exceeded its deadline"))
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse(c, "internal_error", "an unexpected error occurred"))
		return
	}

	status, ok := kindStatus[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if de.Kind == domain.KindConflict && badRequestConflicts[de.Code] {
		status = http.StatusBadRequest
	}

	code := de.Code
	if code == "" {
		code = string(de.Kind)
	}
	message := de.Message
	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed", zap.String("code", code), zap.Error(err))
		message = "an unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(c, code, message))
}

func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(c, "validation_error", "invalid request body: "+err.Error()))
}
