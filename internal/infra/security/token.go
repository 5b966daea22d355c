package security

import (
	"crypto/rand"
	"fmt"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ResetTokenLength is the length of generated password-reset tokens.
const ResetTokenLength = 128

// GenerateAlphanumericToken returns a random string of the given length
// drawn from [a-zA-Z0-9].
func GenerateAlphanumericToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}

	return string(out), nil
}

// GenerateNumericCode returns a random numeric string of the given length.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	digits := make([]byte, length)
	for i, b := range buf {
		digits[i] = '0' + (b % 10)
	}

	return string(digits), nil
}

// GenerateTemporaryPassword produces an administrator-issued temporary
// credential: twelve random alphanumerics plus a fixed suffix that
// guarantees every complexity class is present.
func GenerateTemporaryPassword() (string, error) {
	base, err := GenerateAlphanumericToken(12)
	if err != nil {
		return "", err
	}
	return base + "aA1!", nil
}
