package port

// PasswordPolicy enforces password requirements and scores strength.
type PasswordPolicy interface {
	Validate(password string, userInputs ...string) error
	Strength(password string, userInputs ...string) int
}

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// ConfigurablePasswordHasher allows runtime adjustment of Argon2id parameters.
type ConfigurablePasswordHasher interface {
	PasswordHasher
	Configure(params Argon2Params) error
	Parameters() Argon2Params
}

// TokenGenerator mints opaque bearer credentials and derives their storage hash.
type TokenGenerator interface {
	Generate() (string, error)
	Hash(token string) string
}
