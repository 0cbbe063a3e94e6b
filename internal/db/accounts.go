package db

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalid is returned when input fails validation before reaching storage.
var ErrInvalid = errors.New("db: invalid input")

const (
	MinPasswordLen  = 6
	MinGuestNameLen = 2
	MaxGuestNameLen = 50
)

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateAccount checks registration input and returns the normalized
// email and trimmed name.
func ValidateAccount(email, name, password string) (string, string, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return "", "", fmt.Errorf("%w: please enter a valid email", ErrInvalid)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(password) < MinPasswordLen {
		return "", "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, MinPasswordLen)
	}
	return email, name, nil
}

// ValidateGuestName trims name and checks its length in characters.
func ValidateGuestName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinGuestNameLen || n > MaxGuestNameLen {
		return "", fmt.Errorf("%w: name must be between %d and %d characters", ErrInvalid, MinGuestNameLen, MaxGuestNameLen)
	}
	return name, nil
}

// HashPassword returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
