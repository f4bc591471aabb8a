package security

import (
	"errors"
	"fmt"
	"strings"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

const defaultMinPasswordLength = 8

// DefaultPasswordValidator returns the registration policy: at least eight
// characters with one letter and one digit.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		RequireLetterRule(),
		RequireDigitRule(),
	)
}

// PasswordPolicy adapts the password validator to the domain-level policy interface.
// Strength scoring is advisory and never rejects a password.
type PasswordPolicy struct {
	validator *PasswordValidator
}

// NewPasswordPolicy builds a policy around validator, or the default one when nil.
func NewPasswordPolicy(validator *PasswordValidator) *PasswordPolicy {
	if validator == nil {
		validator = DefaultPasswordValidator()
	}
	return &PasswordPolicy{validator: validator}
}

// Validate applies the configured rules and reports the first violation as a validation error.
func (p *PasswordPolicy) Validate(password string, _ ...string) error {
	if p == nil || p.validator == nil {
		return fmt.Errorf("password policy not configured")
	}

	err := p.validator.Validate(password)
	if err == nil {
		return nil
	}

	var vErr *PasswordValidationError
	if errors.As(err, &vErr) {
		return domain.NewError(domain.KindValidation, "password_"+vErr.Code, vErr.Message)
	}
	return err
}

// Strength returns the zxcvbn score (0-4), penalizing passwords built from userInputs.
func (p *PasswordPolicy) Strength(password string, userInputs ...string) int {
	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		if trimmed := strings.TrimSpace(in); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}
	return zxcvbn.PasswordStrength(password, inputs).Score
}

var _ port.PasswordPolicy = (*PasswordPolicy)(nil)
