package peer

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

var (
	errTokenInvalid = domain.NewError(domain.KindAuthInvalid, "token_invalid", "token is invalid or expired")
	errAuthDown     = domain.NewError(domain.KindAuthUnavailable, "auth_unavailable", "identity service unavailable")
	errPeerDown     = domain.NewError(domain.KindAuthUnavailable, "dependency_unavailable", "dependent service unavailable")
	errPeerTimeout  = domain.NewError(domain.KindDependencyTimeout, "dependency_timeout", "dependent service timed out")
)

// IdentityClient talks to the identity service.
type IdentityClient struct {
	client
}

// NewIdentityClient builds a client for baseURL. caller names this service on
// internal routes, and tokens may be nil when none are used.
func NewIdentityClient(baseURL string, timeout time.Duration, caller string, tokens ServiceTokenSource, httpClient *http.Client) *IdentityClient {
	return &IdentityClient{client: newClient(baseURL, timeout, caller, tokens, httpClient)}
}

type verifyTokenResponse struct {
	Valid bool `json:"valid"`
	domain.TokenVerification
}

// VerifyToken asks the identity service whether token is live. Rejections
// are auth_invalid; timeouts, refusals and 5xx are auth_unavailable so the
// caller never admits a request it could not verify.
func (c *IdentityClient) VerifyToken(ctx context.Context, token string) (domain.TokenVerification, error) {
	var resp verifyTokenResponse
	err := c.post(ctx, "/auth/verify-token", auth{bearer: token}, map[string]string{"token": token}, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Server() {
			return domain.TokenVerification{}, errTokenInvalid
		}
		return domain.TokenVerification{}, errAuthDown
	}
	if !resp.Valid || resp.UserID == "" {
		return domain.TokenVerification{}, errTokenInvalid
	}
	return resp.TokenVerification, nil
}

type profileResponse struct {
	Profile domain.UserProfileSnapshot `json:"profile"`
}

// FetchProfile reads the caller's own profile using their bearer token.
func (c *IdentityClient) FetchProfile(ctx context.Context, userID, token string) (domain.UserProfileSnapshot, error) {
	var resp profileResponse
	if err := c.get(ctx, "/profile", auth{bearer: token}, &resp); err != nil {
		return domain.UserProfileSnapshot{}, classify(err, "user")
	}
	if resp.Profile.ID != userID {
		return domain.UserProfileSnapshot{}, domain.NewError(domain.KindForbidden, "profile_mismatch", "profile does not belong to the verified user")
	}
	return resp.Profile, nil
}

// RecordAudit delivers msg synchronously to the identity sink.
func (c *IdentityClient) RecordAudit(ctx context.Context, msg domain.AuditMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.post(ctx, "/internal/audit-events", auth{service: true}, msg, nil); err != nil {
		return classify(err, "audit_event")
	}
	return nil
}

// FetchStatus reports whether userID is active and unlocked.
func (c *IdentityClient) FetchStatus(ctx context.Context, userID string) (domain.UserStatus, error) {
	var status domain.UserStatus
	if err := c.get(ctx, "/internal/users/"+url.PathEscape(userID)+"/status", auth{service: true}, &status); err != nil {
		return domain.UserStatus{}, classify(err, "user")
	}
	return status, nil
}

// classify maps a transport failure onto the error taxonomy.
func classify(err error, resource string) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized:
			return errTokenInvalid
		case statusErr.StatusCode == http.StatusForbidden:
			return domain.NewError(domain.KindForbidden, "forbidden", statusErr.Message)
		case statusErr.StatusCode == http.StatusNotFound:
			return domain.NotFound(resource)
		case statusErr.StatusCode == http.StatusGatewayTimeout:
			return errPeerTimeout
		case statusErr.Server():
			return errPeerDown
		default:
			return domain.NewError(domain.KindValidation, statusErr.Code, statusErr.Message)
		}
	}
	if isTimeout(err) {
		return errPeerTimeout
	}
	return errPeerDown
}

var (
	_ port.TokenVerifier = (*IdentityClient)(nil)
	_ port.ProfileSource = (*IdentityClient)(nil)
	_ port.AuditRecorder = (*IdentityClient)(nil)
)
