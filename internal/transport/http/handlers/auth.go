package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

const bearerTokenType = "Bearer"

// AuthHandler exposes registration, login and the token contract.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds the public auth routes. Verify-token is public because
// siblings present the end user's token, not their own.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireUser gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.Register)
	r.POST("/login", append(append([]gin.HandlerFunc{}, loginMiddlewares...), h.Login)...)
	r.POST("/verify-token", h.VerifyToken)
	r.POST("/refresh-token", h.Refresh)
	r.POST("/logout", requireUser, h.Logout)
	r.POST("/change-password", requireUser, h.ChangePassword)
}

// Register creates an account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Context:   middleware.AuditContext(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message:          "user registered successfully",
		User:             newUserResponse(res.User),
		PasswordStrength: res.PasswordStrength,
	})
}

// Login authenticates with a username or email and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(c, "validation_error", "identifier: is required"))
		return
	}

	res, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
		Context:    middleware.AuditContext(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message:     "login successful",
		Token:       res.Token.Token,
		TokenType:   bearerTokenType,
		SessionID:   res.Token.SessionID,
		ExpiresAt:   res.Token.ExpiresAt,
		User:        newUserResponse(res.User),
		Reactivated: res.Reactivated,
	})
}

// VerifyToken resolves a token to its user. The token comes from the
// Authorization header or, failing that, the body.
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	token := presentedToken(c)
	if token == "" {
		var req VerifyTokenRequest
		_ = c.ShouldBindJSON(&req)
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(c, "auth_missing", "token is required"))
		return
	}

	v, err := h.auth.VerifyToken(c.Request.Context(), token)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyTokenResponse{
		Message:   "token is valid",
		Valid:     true,
		UserID:    v.UserID,
		SessionID: v.SessionID,
		ExpiresAt: v.ExpiresAt,
	})
}

// Refresh rotates the presented token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := presentedToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(c, "auth_missing", "bearer token is required"))
		return
	}

	issued, err := h.auth.Refresh(c.Request.Context(), token, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Message:   "token refreshed",
		Token:     issued.Token,
		TokenType: bearerTokenType,
		SessionID: issued.SessionID,
		ExpiresAt: issued.ExpiresAt,
	})
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.GetBearerToken(c)); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// ChangePassword re-hashes the password and revokes every session.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.auth.ChangePassword(c.Request.Context(), usecase.ChangePasswordInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Context:         middleware.AuditContext(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChangePasswordResponse{
		Message:         "password changed; please sign in again",
		ChangedAt:       res.ChangedAt,
		SessionsRevoked: res.SessionsRevoked,
	})
}

func presentedToken(c *gin.Context) string {
	parts := strings.SplitN(strings.TrimSpace(c.GetHeader("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerTokenType) {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
