package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword generates a bcrypt hash for the provided password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword compares the provided password against a stored bcrypt hash.
// A mismatch is reported as (false, nil); any other comparison failure is an
// error so callers can fail closed.
func VerifyPassword(password, hash string) (bool, error) {
	if password == "" || hash == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, fmt.Errorf("compare password hash: %w", err)
}

// HashAnswer hashes a security-question answer with the same scheme as
// passwords.
func HashAnswer(answer string) (string, error) {
	return HashPassword(answer)
}

// VerifyAnswer compares a candidate security-question answer to its hash.
func VerifyAnswer(answer, hash string) (bool, error) {
	return VerifyPassword(answer, hash)
}
