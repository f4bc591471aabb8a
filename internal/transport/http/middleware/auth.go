package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/security"
)

// ServiceTokenHeader carries the HS256 token services present on internal routes.
const ServiceTokenHeader = "X-Service-Token"

const defaultVerifyTimeout = 3 * time.Second

// ServiceTokenVerifier validates service tokens.
type ServiceTokenVerifier interface {
	Verify(token string) (*security.ServiceClaims, error)
}

// AuthOptions configures RequireUser.
type AuthOptions struct {
	Cache   *TokenCache
	Timeout time.Duration
	Logger  *zap.Logger
}

// RequireUser extracts the bearer token and resolves it through verifier,
// consulting the cache first. A verifier that cannot answer rejects the
// request with auth_unavailable; the request is never admitted unverified.
func RequireUser(verifier port.TokenVerifier, opts AuthOptions) gin.HandlerFunc {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "auth_missing", "missing or malformed bearer token")
			return
		}

		verified, hit := opts.Cache.get(token)
		if !hit {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			v, err := verifier.VerifyToken(ctx, token)
			cancel()
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrAuthInvalid), errors.Is(err, domain.ErrAuthMissing):
					abortWithError(c, http.StatusUnauthorized, "auth_invalid", "token is invalid or expired")
				default:
					log.Warn("token verification unavailable", zap.String("trace_id", GetTraceID(c)), zap.Error(err))
					abortWithError(c, http.StatusServiceUnavailable, "auth_unavailable", "identity service unavailable, retry later")
				}
				return
			}
			verified = v
			opts.Cache.put(token, verified)
		}

		c.Set(UserIDKey, verified.UserID)
		c.Set(TokenKey, token)
		c.Set(SessionIDKey, verified.SessionID)
		GetRequestContext(c).UserID = verified.UserID

		c.Next()
	}
}

// RequireService admits only callers presenting a valid service token.
// Allowed, when non-empty, restricts the calling services.
func RequireService(verifier ServiceTokenVerifier, allowed ...string) gin.HandlerFunc {
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}

	return func(c *gin.Context) {
		if verifier == nil {
			abortWithError(c, http.StatusServiceUnavailable, "service_auth_disabled", "service authentication is not configured")
			return
		}
		raw := strings.TrimSpace(c.GetHeader(ServiceTokenHeader))
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "auth_missing", "missing service token")
			return
		}
		claims, err := verifier.Verify(raw)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "auth_invalid", "invalid service token")
			return
		}
		if len(allow) > 0 && !allow[claims.Service] {
			abortWithError(c, http.StatusForbidden, "forbidden", "service not allowed on this route")
			return
		}

		c.Set(ServiceKey, claims.Service)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
