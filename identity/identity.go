// Package identity is the user and role store consulted by the auth engine.
// It owns usernames, password hashes and role membership.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tunehub/authcore/password"
)

// Role names.
const (
	RoleUser      = "User"
	RoleModerator = "Moderator"
	RoleAdmin     = "Admin"
)

var (
	ErrUserNotFound      = errors.New("identity: user not found")
	ErrDuplicateUsername = errors.New("identity: username already taken")
	ErrInvalidUsername   = errors.New("identity: invalid username")
)

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store looks up users, creates them and manages their roles. An empty role
// set marks a banned user.
type Store interface {
	FindByName(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, username, password string) (*User, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	AddRole(ctx context.Context, userID, role string) error
	RemoveRoles(ctx context.Context, userID string) error
	VerifyPassword(ctx context.Context, user *User, password string) (bool, error)
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 64 {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// HasRole reports whether roles contains role.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type upgrader interface {
	NeedsUpgrade(encoded string) (bool, error)
}

// rehash returns a fresh hash of pw when hasher reports encoded as outdated.
func rehash(hasher password.Hasher, encoded, pw string) (string, bool) {
	u, ok := hasher.(upgrader)
	if !ok {
		return "", false
	}
	if stale, err := u.NeedsUpgrade(encoded); err != nil || !stale {
		return "", false
	}
	hash, err := hasher.Hash(pw)
	if err != nil {
		return "", false
	}
	return hash, true
}
