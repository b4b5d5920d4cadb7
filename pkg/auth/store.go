// Package auth verifies user credentials and issues and validates the
// bearer tokens that identify callers on every authenticated request.
package auth

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pario-ai/llmgate/pkg/models"
)

// Store holds the statically configured accounts.
type Store struct {
	users map[string]models.User
	// dummy is compared against for unknown usernames so a missing account
	// costs the same bcrypt work as a wrong password.
	dummy []byte
}

// NewStore creates a Store from the given users. Later duplicates win.
func NewStore(users []models.User) *Store {
	m := make(map[string]models.User, len(users))
	for _, u := range users {
		m[u.Username] = u
	}

	cost := bcrypt.DefaultCost
	if len(users) > 0 {
		if c, err := bcrypt.Cost([]byte(users[0].PasswordHash)); err == nil {
			cost = c
		}
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	return &Store{users: m, dummy: dummy}
}

// Lookup returns the account for username.
func (s *Store) Lookup(username string) (models.User, bool) {
	u, ok := s.users[username]
	return u, ok
}

// Verify returns the user when the password matches the stored hash. Unknown
// users, disabled accounts, wrong passwords and malformed hashes are all
// reported the same way.
func (s *Store) Verify(username, password string) (models.User, bool) {
	u, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return models.User{}, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, false
	}
	if u.Disabled {
		return models.User{}, false
	}
	return u, true
}

// HashPassword returns a bcrypt hash suitable for the users section of the config.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
