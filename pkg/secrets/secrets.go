// Package secrets handles generation and verification of the pre-shared
// service credential that marks trusted internal callers.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "edgegate/pkg/domain-errors"
)

// Generate creates a cryptographically secure random credential, base64
// encoded so it can travel in a header.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate credential")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the credential for storage in configuration.
// Only the hash lives in the environment; inbound headers are verified
// against it.
func Hash(credential string) (string, error) {
	if credential == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "credential is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash credential")
	}
	return string(hashed), nil
}

// Verify checks a presented credential against the stored bcrypt hash.
func Verify(credential, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid service credential")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify credential")
	}
	return nil
}
