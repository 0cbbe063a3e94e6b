package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccount(t *testing.T) {
	email, name, err := ValidateAccount("  Jane@Example.COM ", " Jane ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)
	assert.Equal(t, "Jane", name)

	tests := []struct {
		name     string
		email    string
		userName string
		password string
	}{
		{"bad email", "not-an-email", "Jane", "secret1"},
		{"empty name", "jane@example.com", "  ", "secret1"},
		{"short password", "jane@example.com", "Jane", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ValidateAccount(tt.email, tt.userName, tt.password)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidateGuestName(t *testing.T) {
	name, err := ValidateGuestName("  Al ")
	require.NoError(t, err)
	assert.Equal(t, "Al", name)

	_, err = ValidateGuestName("A")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ValidateGuestName(strings.Repeat("x", 51))
	assert.ErrorIs(t, err, ErrInvalid)

	// multi-byte names count characters, not bytes
	_, err = ValidateGuestName(strings.Repeat("é", 50))
	assert.NoError(t, err)
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", h)
	assert.True(t, CheckPassword(h, "secret1"))
	assert.False(t, CheckPassword(h, "secret2"))
}

func TestNewID(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.Len(t, NewID(), 36)
}
