package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = domain.NewError(domain.KindAuthInvalid, "invalid_credentials", "invalid username or password")
	// ErrAccountLocked indicates too many failed logins; the lock expires on its own.
	ErrAccountLocked = domain.NewError(domain.KindAuthInvalid, "account_locked", "account is temporarily locked")
	// ErrAccountDeleted indicates a deactivated account past its reactivation window.
	ErrAccountDeleted = domain.NewError(domain.KindAuthInvalid, "account_deleted", "account has been deleted")
	// ErrTokenInvalid covers every reason a bearer token is refused.
	ErrTokenInvalid = domain.NewError(domain.KindAuthInvalid, "token_invalid", "token is invalid or expired")
	// ErrPasswordReused indicates the new password equals the current one.
	ErrPasswordReused = domain.NewError(domain.KindValidation, "password_reused", "new password must differ from the current password")
)

const (
	revokeReasonLogout         = "logout"
	revokeReasonRefresh        = "refreshed"
	revokeReasonPasswordChange = "password_change"
	revokeReasonSessionLimit   = "session_limit"
	revokeReasonDeactivated    = "account_deactivated"

	defaultTokenTTL = 24 * time.Hour
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Context   domain.RequestContext
}

// RegisterResult returns the created user and an advisory strength score (0..4).
type RegisterResult struct {
	User             domain.User
	PasswordStrength int
}

// LoginInput carries credentials and request origin.
type LoginInput struct {
	Identifier string
	Password   string
	Context    domain.RequestContext
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token       domain.IssuedToken
	User        domain.User
	Reactivated bool
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	Context         domain.RequestContext
}

// PasswordChangeResult summarizes the outcome of a password change operation.
type PasswordChangeResult struct {
	UserID          string
	ChangedAt       time.Time
	SessionsRevoked int
}

// AuthService coordinates registration, login and the token contract.
type AuthService struct {
	identity  config.IdentitySettings
	rateLimit config.RateLimitSettings

	users         port.UserRepository
	sessions      port.SessionRepository
	security      port.SecuritySettingsRepository
	analytics     port.AnalyticsRepository
	hasher        port.PasswordHasher
	policy        port.PasswordPolicy
	tokens        port.TokenGenerator
	audit         *AuditService
	invalidations port.InvalidationPublisher
	tx            port.Transactor
	limiter       *attemptLimiter

	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions port.SessionRepository,
	security port.SecuritySettingsRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicy,
	tokens port.TokenGenerator,
	audit *AuditService,
	logger *zap.Logger,
) (*AuthService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if users == nil || sessions == nil || security == nil {
		return nil, fmt.Errorf("user, session and security repositories are required")
	}
	if hasher == nil || policy == nil || tokens == nil || audit == nil {
		return nil, fmt.Errorf("hasher, policy, token generator and audit service are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := cfg.Identity
	if identity.TokenTTL <= 0 {
		identity.TokenTTL = defaultTokenTTL
	}
	return &AuthService{
		identity:  identity,
		rateLimit: cfg.RateLimit,
		users:     users,
		sessions:  sessions,
		security:  security,
		hasher:    hasher,
		policy:    policy,
		tokens:    tokens,
		audit:     audit,
		logger:    logger,
		now:       utcNow,
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTransactor makes each operation's writes atomic.
func (s *AuthService) WithTransactor(tx port.Transactor) *AuthService {
	s.tx = tx
	return s
}

// WithRateLimits enables sliding-window limits on login, register and refresh.
func (s *AuthService) WithRateLimits(store port.RateLimitStore) *AuthService {
	if store != nil {
		s.limiter = newAttemptLimiter(store, s.rateLimit.WindowDuration, s.logger)
	}
	return s
}

// WithInvalidations announces revoked tokens to sibling services.
func (s *AuthService) WithInvalidations(pub port.InvalidationPublisher) *AuthService {
	s.invalidations = pub
	return s
}

// WithAnalytics counts logins on the per-user aggregate.
func (s *AuthService) WithAnalytics(repo port.AnalyticsRepository) *AuthService {
	s.analytics = repo
	return s
}

// Register creates an account after validating identifiers and the password policy.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	now := s.now()
	if err := s.limiter.allow(ctx, registerRateLimitScope, in.Context.IPAddress, s.rateLimit.RegisterMaxAttempts, now); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !usernamePattern.MatchString(username) {
		return nil, domain.Validation("username", "must be 3-50 letters, digits, dots, dashes or underscores")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, domain.Validation("email", "must be a valid address")
	}
	if err := s.policy.Validate(in.Password, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:                 uuid.NewString(),
		Username:           username,
		Email:              email,
		PasswordHash:       hash,
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		ColorPreferences:   []string{},
		IsActive:           true,
		LastPasswordChange: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.audit.emit(ctx, &user.ID, domain.EventLoginSuccess, domain.SeverityInfo, "account registered", in.Context,
			map[string]any{"action": "register"})
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	user.PasswordHash = ""
	return &RegisterResult{User: user, PasswordStrength: s.policy.Strength(in.Password, username, email)}, nil
}

// Login authenticates by username or email and issues a session token.
// Failures feed the lockout counter and the suspicious-activity heuristic.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, domain.Validation("identifier", "is required")
	}
	if in.Password == "" {
		return nil, domain.Validation("password", "is required")
	}

	now := s.now()
	if err := s.limiter.allow(ctx, loginRateLimitScope, in.Context.IPAddress, s.rateLimit.LoginMaxAttempts, now); err != nil {
		return nil, err
	}
	if err := s.limiter.allow(ctx, loginRateLimitScope, identifier, s.rateLimit.LoginMaxAttempts, now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if auditErr := s.audit.emit(ctx, nil, domain.EventLoginFailed, domain.SeverityWarning, "login failed: unknown identifier", in.Context,
				map[string]any{"reason": "unknown_identifier"}); auditErr != nil {
				return nil, auditErr
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// Early refusal only; both outcomes below re-check under the row lock.
	sec, err := s.security.GetOrCreate(ctx, domain.DefaultSecuritySettings(user.ID, now))
	if err != nil {
		return nil, fmt.Errorf("load security settings: %w", err)
	}
	if sec.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		lockedMeanwhile, err := s.recordFailedLogin(ctx, user.ID, in.Context, now)
		if err != nil {
			return nil, err
		}
		if lockedMeanwhile {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	reactivated := false
	if !user.IsActive {
		if !user.CanReactivate(now) {
			return nil, ErrAccountDeleted
		}
		reactivated = true
	}

	var (
		issued  domain.IssuedToken
		evicted int
	)
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if reactivated {
			if err := s.users.SetActive(ctx, user.ID, true, nil); err != nil {
				return fmt.Errorf("reactivate user: %w", err)
			}
			user.IsActive = true
			user.DeactivatedAt = nil
		}

		sec, err := s.security.GetForUpdate(ctx, domain.DefaultSecuritySettings(user.ID, now))
		if err != nil {
			return fmt.Errorf("lock security settings: %w", err)
		}
		if sec.IsLocked(now) {
			return ErrAccountLocked
		}
		sec.RegisterSuccessfulLogin(now)
		if err := s.security.Update(ctx, *sec); err != nil {
			return fmt.Errorf("update security settings: %w", err)
		}

		n, err := s.enforceSessionLimit(ctx, user.ID, sec.MaxConcurrentSessions, now)
		if err != nil {
			return err
		}
		evicted = n

		issued, err = s.issueSession(ctx, user.ID, in.Context, now)
		if err != nil {
			return err
		}
		if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		if s.analytics != nil {
			if err := s.analytics.Increment(ctx, user.ID, domain.AnalyticsDelta{Logins: 1, LoginAt: &now}); err != nil {
				return fmt.Errorf("increment analytics: %w", err)
			}
		}

		metadata := map[string]any{"session_id": issued.SessionID}
		if reactivated {
			metadata["reactivated"] = true
		}
		return s.audit.emit(ctx, &user.ID, domain.EventLoginSuccess, domain.SeverityInfo, "login succeeded", in.Context, metadata)
	})
	if err != nil {
		return nil, err
	}

	if evicted > 0 {
		s.publishTokenInvalidation(ctx, user.ID, revokeReasonSessionLimit)
	}
	if reactivated {
		s.logger.Info("account reactivated on login", zap.String("user_id", user.ID))
	}

	user.LastLogin = &now
	user.PasswordHash = ""
	return &LoginResult{Token: issued, User: *user, Reactivated: reactivated}, nil
}

// recordFailedLogin commits the failure counter and its audit trail against the
// locked settings row. It reports true, writing nothing, when a concurrent
// attempt locked the account first.
func (s *AuthService) recordFailedLogin(ctx context.Context, userID string, rc domain.RequestContext, now time.Time) (bool, error) {
	lockedMeanwhile := false
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		sec, err := s.security.GetForUpdate(ctx, domain.DefaultSecuritySettings(userID, now))
		if err != nil {
			return fmt.Errorf("lock security settings: %w", err)
		}
		if sec.IsLocked(now) {
			lockedMeanwhile = true
			return nil
		}

		attempts := sec.FailedLoginAttempts + 1
		locked := sec.RegisterFailedLogin(now, s.identity.LockoutThreshold, s.identity.LockoutDuration)
		if err := s.security.Update(ctx, *sec); err != nil {
			return fmt.Errorf("update security settings: %w", err)
		}

		if err := s.audit.emit(ctx, &userID, domain.EventLoginFailed, domain.SeverityWarning, "login failed: invalid password", rc,
			map[string]any{"failed_attempts": attempts}); err != nil {
			return err
		}

		if locked {
			if err := s.audit.emit(ctx, &userID, domain.EventAccountLocked, domain.SeverityWarning, "account locked after repeated failed logins", rc,
				map[string]any{"locked_until": sec.AccountLockedUntil.Format(time.RFC3339)}); err != nil {
				return err
			}
			s.logger.Warn("account locked", zap.String("user_id", userID))
		}

		window := s.identity.SuspiciousWindow
		if window <= 0 {
			window = time.Hour
		}
		threshold := s.identity.SuspiciousThreshold
		if threshold <= 0 {
			threshold = 3
		}
		count, err := s.audit.audits.CountByType(ctx, userID, domain.EventLoginFailed, now.Add(-window))
		if err != nil {
			return fmt.Errorf("count failed logins: %w", err)
		}
		if count >= threshold {
			return s.audit.emit(ctx, &userID, domain.EventSuspiciousActivity, domain.SeverityWarning, "repeated failed logins", rc,
				map[string]any{"failed_logins": count, "window_minutes": int(window / time.Minute)})
		}
		return nil
	})
	return lockedMeanwhile, err
}

// enforceSessionLimit revokes the oldest live sessions so that one more fits under max.
func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string, max int, now time.Time) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	active, err := s.sessions.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	excess := len(active) - (max - 1)
	for i := 0; i < excess; i++ {
		if err := s.sessions.Revoke(ctx, active[i].ID, revokeReasonSessionLimit, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("revoke session: %w", err)
		}
	}
	if excess < 0 {
		return 0, nil
	}
	return excess, nil
}

func (s *AuthService) issueSession(ctx context.Context, userID string, rc domain.RequestContext, now time.Time) (domain.IssuedToken, error) {
	raw, err := s.tokens.Generate()
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("generate token: %w", err)
	}
	session := domain.Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		TokenHash:         s.tokens.Hash(raw),
		DeviceFingerprint: domain.DeviceFingerprint(rc.UserAgent, rc.IPAddress),
		IPAddress:         rc.IPAddress,
		UserAgent:         rc.UserAgent,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.identity.TokenTTL),
		LastSeenAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.IssuedToken{}, fmt.Errorf("create session: %w", err)
	}
	return domain.IssuedToken{Token: raw, SessionID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// VerifyToken resolves a bearer token to its user. The only side effect is the
// session's last-seen refresh.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (domain.TokenVerification, error) {
	session, err := s.activeSession(ctx, token)
	if err != nil {
		return domain.TokenVerification{}, err
	}
	if err := s.sessions.Touch(ctx, session.ID, s.now()); err != nil {
		s.logger.Warn("failed to refresh session last-seen", zap.String("session_id", session.ID), zap.Error(err))
	}
	return domain.TokenVerification{UserID: session.UserID, SessionID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// activeSession applies every validity rule: unexpired, unrevoked, not idle,
// user active and not locked.
func (s *AuthService) activeSession(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	now := s.now()

	session, err := s.sessions.GetByTokenHash(ctx, s.tokens.Hash(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrTokenInvalid
	}

	sec, err := s.security.GetOrCreate(ctx, domain.DefaultSecuritySettings(user.ID, now))
	if err != nil {
		return nil, fmt.Errorf("load security settings: %w", err)
	}
	if sec.IsLocked(now) {
		return nil, ErrTokenInvalid
	}

	idle := time.Duration(0)
	if sec.LogoutInactiveSessions {
		idle = sec.IdleTimeout()
	}
	if !session.IsActive(now, idle) {
		return nil, ErrTokenInvalid
	}
	return session, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.activeSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, session.ID, revokeReasonLogout, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	s.publishTokenInvalidation(ctx, session.UserID, revokeReasonLogout)
	return nil
}

// Refresh swaps the presented token for a new one with a fresh expiry.
func (s *AuthService) Refresh(ctx context.Context, token string, rc domain.RequestContext) (domain.IssuedToken, error) {
	session, err := s.activeSession(ctx, token)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	now := s.now()
	if err := s.limiter.allow(ctx, refreshRateLimitScope, session.UserID, s.rateLimit.RefreshMaxAttempts, now); err != nil {
		return domain.IssuedToken{}, err
	}

	var issued domain.IssuedToken
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.sessions.Revoke(ctx, session.ID, revokeReasonRefresh, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTokenInvalid
			}
			return fmt.Errorf("revoke session: %w", err)
		}
		var err error
		issued, err = s.issueSession(ctx, session.UserID, rc, now)
		if err != nil {
			return err
		}
		return s.audit.emit(ctx, &session.UserID, domain.EventTokenRefresh, domain.SeverityInfo, "token refreshed", rc,
			map[string]any{"previous_session_id": session.ID, "session_id": issued.SessionID})
	})
	if err != nil {
		return domain.IssuedToken{}, err
	}
	s.publishTokenInvalidation(ctx, session.UserID, revokeReasonRefresh)
	return issued, nil
}

// ChangePassword re-hashes the password and revokes every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput) (*PasswordChangeResult, error) {
	if in.CurrentPassword == "" {
		return nil, domain.Validation("current_password", "is required")
	}
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, notFoundAs(err, "user")
	}

	ok, err := s.hasher.Verify(in.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if in.NewPassword == in.CurrentPassword {
		return nil, ErrPasswordReused
	}
	if err := s.policy.Validate(in.NewPassword, user.Username, user.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	revoked := 0
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		sec, err := s.security.GetForUpdate(ctx, domain.DefaultSecuritySettings(user.ID, now))
		if err != nil {
			return fmt.Errorf("lock security settings: %w", err)
		}
		sec.LastPasswordChange = &now
		sec.UpdatedAt = now
		if err := s.security.Update(ctx, *sec); err != nil {
			return fmt.Errorf("update security settings: %w", err)
		}
		revoked, err = s.sessions.RevokeAllForUser(ctx, user.ID, revokeReasonPasswordChange, now)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return s.audit.emit(ctx, &user.ID, domain.EventPasswordChange, domain.SeverityWarning, "password changed", in.Context,
			map[string]any{"sessions_revoked": revoked})
	})
	if err != nil {
		return nil, err
	}

	s.publishTokenInvalidation(ctx, user.ID, revokeReasonPasswordChange)
	return &PasswordChangeResult{UserID: user.ID, ChangedAt: now, SessionsRevoked: revoked}, nil
}

func (s *AuthService) publishTokenInvalidation(ctx context.Context, userID, reason string) {
	publishInvalidation(ctx, s.invalidations, s.logger, domain.Invalidation{
		UserID:     userID,
		Artifact:   domain.ArtifactToken,
		Reason:     reason,
		Source:     config.ServiceIdentity,
		OccurredAt: s.now(),
	})
}

// publishInvalidation delivers best effort; cache TTLs bound staleness when it fails.
func publishInvalidation(ctx context.Context, pub port.InvalidationPublisher, logger *zap.Logger, event domain.Invalidation) {
	if pub == nil {
		return
	}
	if err := pub.PublishInvalidation(ctx, event); err != nil {
		logger.Warn("failed to publish invalidation",
			zap.String("user_id", event.UserID),
			zap.String("artifact", string(event.Artifact)),
			zap.Error(err),
		)
	}
}
