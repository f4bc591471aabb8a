package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

const testServiceSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *ServiceTokenIssuer {
	t.Helper()
	issuer, err := NewServiceTokenIssuer(config.ServiceAuthSettings{
		Secret: testServiceSecret,
		Issuer: "vanity",
		TTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewServiceTokenIssuer returned error: %v", err)
	}
	return issuer
}

func TestServiceTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Issue("social")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Service != "social" || claims.Issuer != "vanity" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestServiceTokenExpired(t *testing.T) {
	issuer := newTestIssuer(t)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := issuer.Issue("commerce")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	issuer.now = func() time.Time { return time.Now() }
	if _, err := issuer.Verify(token); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("expected ErrServiceTokenInvalid, got %v", err)
	}
}

func TestServiceTokenRejectsForeignSecretAndAlg(t *testing.T) {
	issuer := newTestIssuer(t)

	other, err := NewServiceTokenIssuer(config.ServiceAuthSettings{
		Secret: strings.Repeat("x", 40),
		Issuer: "vanity",
	})
	if err != nil {
		t.Fatalf("NewServiceTokenIssuer returned error: %v", err)
	}
	foreign, _ := other.Issue("styling")
	if _, err := issuer.Verify(foreign); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("expected foreign token rejection, got %v", err)
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &ServiceClaims{Service: "styling"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := issuer.Verify(unsigned); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("expected alg none rejection, got %v", err)
	}
}

func TestNewServiceTokenIssuerRejectsShortSecret(t *testing.T) {
	if _, err := NewServiceTokenIssuer(config.ServiceAuthSettings{Secret: "short", Issuer: "vanity"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
