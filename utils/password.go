package utils

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes, so longer passwords are refused instead of silently truncated.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 72
)

var ErrPasswordLength = errors.New("password must be 6-72 bytes")

// ValidatePassword checks the length rules enforced at registration.
func ValidatePassword(password string) error {
	if l := len(password); l < MinPasswordLen || l > MaxPasswordLen {
		return ErrPasswordLength
	}
	return nil
}

// HashPassword validates and bcrypt-hashes password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), errors.Wrap(err, "bcrypt")
}

// CheckPassword reports whether password matches hash. An empty hash (OAuth-only account) never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
