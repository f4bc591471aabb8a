package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

const opaqueTokenBytes = 32

// GenerateSecureToken returns a base64 URL-safe random string using the specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// OpaqueTokenGenerator mints 32-byte bearer tokens. Only HashToken of a token is ever stored.
type OpaqueTokenGenerator struct{}

// NewOpaqueTokenGenerator creates a token generator.
func NewOpaqueTokenGenerator() *OpaqueTokenGenerator {
	return &OpaqueTokenGenerator{}
}

// Generate returns a fresh URL-safe token.
func (OpaqueTokenGenerator) Generate() (string, error) {
	return GenerateSecureToken(opaqueTokenBytes)
}

// Hash returns the storage form of token.
func (OpaqueTokenGenerator) Hash(token string) string {
	return HashToken(token)
}

var _ port.TokenGenerator = OpaqueTokenGenerator{}
