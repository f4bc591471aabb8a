package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

// ErrServiceTokenInvalid indicates a service token failed signature or claim checks.
var ErrServiceTokenInvalid = errors.New("jwt: invalid service token")

const (
	defaultServiceTokenTTL = 5 * time.Minute
	minServiceSecretLength = 32
)

// ServiceClaims identifies the calling service on internal routes.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// ServiceTokenIssuer signs and verifies HS256 tokens shared between services.
type ServiceTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewServiceTokenIssuer builds an issuer from the shared service auth settings.
func NewServiceTokenIssuer(cfg config.ServiceAuthSettings) (*ServiceTokenIssuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < minServiceSecretLength {
		return nil, fmt.Errorf("jwt: service secret must be at least %d bytes", minServiceSecretLength)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultServiceTokenTTL
	}

	return &ServiceTokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue signs a short-lived token naming service as the caller.
func (i *ServiceTokenIssuer) Issue(service string) (string, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", fmt.Errorf("jwt: service name is required")
	}

	now := i.now()
	claims := &ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims. Any failure wraps ErrServiceTokenInvalid.
func (i *ServiceTokenIssuer) Verify(token string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceTokenInvalid, err)
	}
	if !parsed.Valid || claims.Service == "" {
		return nil, ErrServiceTokenInvalid
	}
	return claims, nil
}
