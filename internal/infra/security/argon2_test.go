package security

import (
	"strings"
	"testing"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

func fastParams() port.Argon2Params {
	return port.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(fastParams())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)
	password := "pw12abcd"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected header: %s$%s", parts[0], parts[1])
	}
	if strings.Contains(encoded, password) {
		t.Fatal("encoded hash must not contain the plaintext")
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil || !ok {
		t.Fatalf("Verify returned ok=%v err=%v for correct password", ok, err)
	}

	ok, err = hasher.Verify("pw12abce", encoded)
	if err != nil || ok {
		t.Fatalf("Verify returned ok=%v err=%v for wrong password", ok, err)
	}
}

func TestArgon2Hasher_SaltsDiffer(t *testing.T) {
	hasher := newTestHasher(t)
	first, _ := hasher.Hash("same-password1")
	second, _ := hasher.Hash("same-password1")
	if first == second {
		t.Fatal("two hashes of the same password must use different salts")
	}
}

func TestArgon2Hasher_InvalidInputs(t *testing.T) {
	hasher := newTestHasher(t)

	if _, err := hasher.Verify("password", "invalid-format"); err == nil {
		t.Fatal("Verify expected to return error for invalid format")
	}

	ok, err := hasher.Verify("", "")
	if err != nil || ok {
		t.Fatalf("Verify should return false without error for empty inputs, got ok=%v err=%v", ok, err)
	}

	if _, err := NewArgon2Hasher(port.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected too little memory to be rejected")
	}
}

func TestArgon2Hasher_ConfigureKeepsOldHashesValid(t *testing.T) {
	hasher := newTestHasher(t)
	old, err := hasher.Hash("change-me-1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	next := fastParams()
	next.Iterations = 2
	next.KeyLength = 48
	if err := hasher.Configure(next); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	encoded, err := hasher.Hash("change-me-1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.Contains(strings.Split(encoded, "$")[2], "t=2") {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", encoded)
	}

	if ok, err := hasher.Verify("change-me-1", old); err != nil || !ok {
		t.Fatalf("hash made with previous parameters must still verify, ok=%v err=%v", ok, err)
	}
}
