package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()

	user := h.register(t, "priya", "correct-horse")
	if user.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped from the result")
	}

	res, err := h.login("PRIYA@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.Token.Token == "" {
		t.Fatalf("expected a raw token")
	}

	verified, err := h.auth.VerifyToken(ctx, res.Token.Token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if verified.UserID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, verified.UserID)
	}

	if got := h.analytics.rows[user.ID].LoginCount; got != 1 {
		t.Fatalf("expected login count 1, got %d", got)
	}
	if got := len(h.audits.ofType(domain.EventLoginSuccess)); got != 2 {
		t.Fatalf("expected register and login success events, got %d", got)
	}
}

func TestAuthServiceRegisterRejectsDuplicateUsername(t *testing.T) {
	h := newIdentityHarness(t)
	h.register(t, "priya", "correct-horse")

	_, err := h.auth.Register(context.Background(), RegisterInput{
		Username: "priya",
		Email:    "other@example.com",
		Password: "correct-horse",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthServiceRegisterValidatesInput(t *testing.T) {
	h := newIdentityHarness(t)
	cases := map[string]RegisterInput{
		"short username": {Username: "ab", Email: "ab@example.com", Password: "correct-horse"},
		"bad email":      {Username: "priya", Email: "not-an-email", Password: "correct-horse"},
		"weak password":  {Username: "priya", Email: "priya@example.com", Password: "short"},
	}
	for name, in := range cases {
		if _, err := h.auth.Register(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestAuthServiceRegisterRateLimitedPerAddress(t *testing.T) {
	h := newIdentityHarness(t)
	rc := domain.RequestContext{IPAddress: "192.0.2.7"}

	for i, name := range []string{"user_one", "user_two", "user_three"} {
		_, err := h.auth.Register(context.Background(), RegisterInput{
			Username: name, Email: name + "@example.com", Password: "correct-horse", Context: rc,
		})
		if err != nil {
			t.Fatalf("register %d returned error: %v", i, err)
		}
	}

	_, err := h.auth.Register(context.Background(), RegisterInput{
		Username: "user_four", Email: "user_four@example.com", Password: "correct-horse", Context: rc,
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	var limited *RateLimitExceededError
	if !errors.As(err, &limited) || limited.RetryAfter <= 0 {
		t.Fatalf("expected a retry-after hint, got %v", err)
	}
}

func TestAuthServiceLockoutAfterRepeatedFailures(t *testing.T) {
	h := newIdentityHarness(t)
	user := h.register(t, "priya", "correct-horse")

	for i := 1; i <= 5; i++ {
		_, err := h.login("priya", "wrong-password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
		h.clock.Advance(10 * time.Second)
	}

	locked := h.audits.ofType(domain.EventAccountLocked)
	if len(locked) != 1 {
		t.Fatalf("expected one account_locked event, got %d", len(locked))
	}
	if locked[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected warning severity, got %s", locked[0].Severity)
	}
	if len(h.audits.ofType(domain.EventSuspiciousActivity)) == 0 {
		t.Fatalf("expected a suspicious_activity event after repeated failures")
	}

	eventsAtLock := len(h.audits.events)
	if _, err := h.login("priya", "wrong-password"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("sixth attempt: expected account locked, got %v", err)
	}
	if _, err := h.login("priya", "correct-horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("correct password while locked: expected account locked, got %v", err)
	}
	if got := len(h.audits.events); got != eventsAtLock {
		t.Fatalf("expected no audit events while locked, got %d new", got-eventsAtLock)
	}
	if !errors.Is(ErrAccountLocked, domain.ErrAuthInvalid) {
		t.Fatalf("expected account_locked to map to an authentication failure")
	}

	h.clock.Advance(31 * time.Minute)
	if _, err := h.login("priya", "correct-horse"); err != nil {
		t.Fatalf("login after lock expiry returned error: %v", err)
	}
	sec := h.security.rows[user.ID]
	if sec.FailedLoginAttempts != 0 || sec.AccountLockedUntil != nil {
		t.Fatalf("expected lock state cleared, got attempts=%d until=%v", sec.FailedLoginAttempts, sec.AccountLockedUntil)
	}
}

func TestAuthServiceConcurrentFailuresStillLock(t *testing.T) {
	h := newIdentityHarness(t)
	h.auth.WithTransactor(rowLockTx{})
	h.security.writeDelay = 5 * time.Millisecond
	user := h.register(t, "priya", "correct-horse")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.login("priya", "wrong-password")
		}()
	}
	wg.Wait()

	sec, err := h.security.GetOrCreate(context.Background(), domain.DefaultSecuritySettings(user.ID, h.clock.Now()))
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if !sec.IsLocked(h.clock.Now()) {
		t.Fatalf("expected account locked after 10 failures, got attempts=%d until=%v", sec.FailedLoginAttempts, sec.AccountLockedUntil)
	}
	if got := len(h.audits.ofType(domain.EventLoginFailed)); got != 5 {
		t.Fatalf("expected exactly 5 counted failures before the lock, got %d", got)
	}
	if got := len(h.audits.ofType(domain.EventAccountLocked)); got != 1 {
		t.Fatalf("expected one account_locked event, got %d", got)
	}
	if _, err := h.login("priya", "correct-horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected correct password to be refused while locked, got %v", err)
	}
}

func TestAuthServiceUnknownIdentifierIsAudited(t *testing.T) {
	h := newIdentityHarness(t)
	if _, err := h.login("ghost", "whatever-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	failed := h.audits.ofType(domain.EventLoginFailed)
	if len(failed) != 1 || failed[0].UserID != nil {
		t.Fatalf("expected one anonymous login_failed event, got %+v", failed)
	}
}

func TestAuthServiceIdleSessionExpires(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	h.register(t, "priya", "correct-horse")
	res, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	h.clock.Advance(59 * time.Minute)
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); err != nil {
		t.Fatalf("verify within idle window returned error: %v", err)
	}

	// Verification refreshed last-seen, so another 59 minutes is still fine.
	h.clock.Advance(59 * time.Minute)
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); err != nil {
		t.Fatalf("verify after refresh returned error: %v", err)
	}

	h.clock.Advance(61 * time.Minute)
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected idle session to be refused, got %v", err)
	}
}

func TestAuthServiceLogoutRevokesAndAnnounces(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	h.register(t, "priya", "correct-horse")
	res, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := h.auth.Logout(ctx, res.Token.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked token to be refused, got %v", err)
	}
	if err := h.auth.Logout(ctx, res.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected second logout to fail, got %v", err)
	}
	if got := h.invalidations.count(domain.ArtifactToken); got != 1 {
		t.Fatalf("expected one token invalidation, got %d", got)
	}
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	h.register(t, "priya", "correct-horse")
	res, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	issued, err := h.auth.Refresh(ctx, res.Token.Token, domain.RequestContext{})
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if issued.Token == res.Token.Token {
		t.Fatalf("expected a new token")
	}
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected old token to be refused, got %v", err)
	}
	if _, err := h.auth.VerifyToken(ctx, issued.Token); err != nil {
		t.Fatalf("new token refused: %v", err)
	}
	if got := len(h.audits.ofType(domain.EventTokenRefresh)); got != 1 {
		t.Fatalf("expected one token_refresh event, got %d", got)
	}
}

func TestAuthServiceSessionLimitEvictsOldest(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	user := h.register(t, "priya", "correct-horse")

	var tokens []string
	for i := 0; i < 4; i++ {
		res, err := h.login("priya", "correct-horse")
		if err != nil {
			t.Fatalf("login %d returned error: %v", i, err)
		}
		tokens = append(tokens, res.Token.Token)
		h.clock.Advance(time.Second)
	}

	if got := h.sessions.activeCount(user.ID, h.clock.Now()); got != 3 {
		t.Fatalf("expected 3 active sessions, got %d", got)
	}
	if _, err := h.auth.VerifyToken(ctx, tokens[0]); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected oldest session to be evicted, got %v", err)
	}
	if _, err := h.auth.VerifyToken(ctx, tokens[3]); err != nil {
		t.Fatalf("newest token refused: %v", err)
	}
	if got := h.invalidations.count(domain.ArtifactToken); got != 1 {
		t.Fatalf("expected one token invalidation for the eviction, got %d", got)
	}
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	user := h.register(t, "priya", "correct-horse")
	first, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := h.login("priya", "correct-horse"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	_, err = h.auth.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "correct-horse", NewPassword: "correct-horse"})
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected password_reused, got %v", err)
	}
	_, err = h.auth.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "nope-nope", NewPassword: "battery-staple"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	res, err := h.auth.ChangePassword(ctx, ChangePasswordInput{UserID: user.ID, CurrentPassword: "correct-horse", NewPassword: "battery-staple"})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if res.SessionsRevoked != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", res.SessionsRevoked)
	}
	if _, err := h.auth.VerifyToken(ctx, first.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected old session to be refused, got %v", err)
	}
	if _, err := h.login("priya", "battery-staple"); err != nil {
		t.Fatalf("login with new password returned error: %v", err)
	}
	if got := h.audits.ofType(domain.EventPasswordChange); len(got) != 1 || got[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected one warning password_change event, got %+v", got)
	}
}

func TestAuthServiceReactivatesWithinGracePeriod(t *testing.T) {
	h := newIdentityHarness(t)
	ctx := context.Background()
	user := h.register(t, "priya", "correct-horse")
	res, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	deactivation, err := h.account.Deactivate(ctx, user.ID, domain.DeletionConfirmationPhrase, domain.RequestContext{})
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if deactivation.SessionsRevoked != 1 {
		t.Fatalf("expected 1 session revoked, got %d", deactivation.SessionsRevoked)
	}
	if _, err := h.auth.VerifyToken(ctx, res.Token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected token of deactivated account to be refused, got %v", err)
	}

	h.clock.Advance(10 * 24 * time.Hour)
	again, err := h.login("priya", "correct-horse")
	if err != nil {
		t.Fatalf("login within grace period returned error: %v", err)
	}
	if !again.Reactivated || !again.User.IsActive {
		t.Fatalf("expected account reactivated, got %+v", again)
	}
}

func TestAuthServiceRefusesAccountPastGracePeriod(t *testing.T) {
	h := newIdentityHarness(t)
	user := h.register(t, "priya", "correct-horse")
	if _, err := h.account.Deactivate(context.Background(), user.ID, domain.DeletionConfirmationPhrase, domain.RequestContext{}); err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}

	h.clock.Advance(31 * 24 * time.Hour)
	if _, err := h.login("priya", "correct-horse"); !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("expected account_deleted, got %v", err)
	}
}
