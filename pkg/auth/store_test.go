package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pario-ai/llmgate/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	hash, err := HashPassword("demo1234", bcrypt.MinCost)
	require.NoError(t, err)
	return NewStore([]models.User{
		{Username: "demo", PasswordHash: hash},
		{Username: "locked", PasswordHash: hash, Disabled: true},
		{Username: "broken", PasswordHash: "not-a-bcrypt-hash"},
	})
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)

	u, ok := s.Verify("demo", "demo1234")
	require.True(t, ok)
	require.Equal(t, "demo", u.Username)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "demo", "wrong"},
		{"unknown user", "nobody", "demo1234"},
		{"disabled account", "locked", "demo1234"},
		{"malformed hash", "broken", "anything"},
		{"empty password", "demo", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := s.Verify(tt.username, tt.password)
			require.False(t, ok)
			require.Equal(t, models.User{}, u)
		})
	}
}

func TestLookup(t *testing.T) {
	s := newTestStore(t)

	u, ok := s.Lookup("locked")
	require.True(t, ok)
	require.True(t, u.Disabled)

	_, ok = s.Lookup("nobody")
	require.False(t, ok)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret!", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Sup3rSecret!")))

	_, err = HashPassword("", bcrypt.MinCost)
	require.Error(t, err)
}
