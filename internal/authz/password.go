package authz

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier compares a submitted secret against a stored hash. The
// hashing scheme is opaque to the rest of the package so tests can inject
// a stub instead of a real KDF.
type SecretVerifier interface {
	Verify(hash, secret string) error
}

// CodeVerifier compares a submitted MFA code against the expected code.
type CodeVerifier interface {
	Verify(expected, submitted string) error
}

// BcryptVerifier verifies secrets hashed with bcrypt.
type BcryptVerifier struct{}

func (BcryptVerifier) Verify(hash, secret string) error {
	if hash == "" {
		return errors.New("secret hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

// HashSecret hashes a plaintext secret with bcrypt. Used by provisioning
// tooling and tests; the serving path only ever verifies.
func HashSecret(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ConstantTimeCodeVerifier compares MFA codes without leaking length or
// prefix information through timing.
type ConstantTimeCodeVerifier struct{}

func (ConstantTimeCodeVerifier) Verify(expected, submitted string) error {
	if len(expected) != len(submitted) {
		return errors.New("code mismatch")
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) != 1 {
		return errors.New("code mismatch")
	}
	return nil
}
