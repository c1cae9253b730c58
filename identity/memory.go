package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunehub/authcore/password"
)

// MemoryStore is an in-process Store. Usernames compare case-insensitively.
type MemoryStore struct {
	hasher password.Hasher

	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]string
	roles  map[string]map[string]struct{}
}

// NewMemoryStore returns an empty store hashing with hasher.
func NewMemoryStore(hasher password.Hasher) *MemoryStore {
	return &MemoryStore{
		hasher: hasher,
		byID:   make(map[string]*User),
		byName: make(map[string]string),
		roles:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) FindByName(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.byID[id]
	return &u, nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Create(_ context.Context, username, pw string) (*User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	hash, err := m.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(username)
	if _, taken := m.byName[key]; taken {
		return nil, ErrDuplicateUsername
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	m.byID[u.ID] = u
	m.byName[key] = u.ID

	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Roles(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.byID[userID]; !ok {
		return nil, ErrUserNotFound
	}
	out := make([]string, 0, len(m.roles[userID]))
	for r := range m.roles[userID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) AddRole(_ context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[userID]; !ok {
		return ErrUserNotFound
	}
	set, ok := m.roles[userID]
	if !ok {
		set = make(map[string]struct{}, 1)
		m.roles[userID] = set
	}
	set[role] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveRoles(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[userID]; !ok {
		return ErrUserNotFound
	}
	delete(m.roles, userID)
	return nil
}

func (m *MemoryStore) VerifyPassword(_ context.Context, user *User, pw string) (bool, error) {
	if user == nil {
		return false, ErrUserNotFound
	}
	ok, err := m.hasher.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		return ok, err
	}
	if hash, upgraded := rehash(m.hasher, user.PasswordHash, pw); upgraded {
		m.mu.Lock()
		if stored, found := m.byID[user.ID]; found {
			stored.PasswordHash = hash
		}
		m.mu.Unlock()
		user.PasswordHash = hash
	}
	return true, nil
}

// Len returns the number of users.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
