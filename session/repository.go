package session

import (
	"context"
	"sync"
)

// maxMutateAttempts bounds optimistic retries of a single Mutate call.
const maxMutateAttempts = 32

// MutateFunc edits the record of one user inside Repository.Mutate. current
// is nil when the user has no record yet. Returning a nil record leaves
// storage unchanged; returning an error aborts without writing. A MutateFunc
// may run more than once when a backend retries after a conflict.
type MutateFunc func(current *Record) (*Record, error)

// Repository persists session records keyed by user id. Find returns
// ErrRecordNotFound when no record exists. Mutate applies fn to the current
// record atomically: no other write to the same user lands between the read
// fn sees and the write of its result.
type Repository interface {
	Find(ctx context.Context, userID string) (*Record, error)
	Mutate(ctx context.Context, userID string, fn MutateFunc) error
}

// MemoryRepository is an in-process Repository for tests and single-node dev runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (m *MemoryRepository) Find(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// Mutate runs fn with the repository lock held.
func (m *MemoryRepository) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.records[userID].Clone())
	if err != nil || next == nil {
		return err
	}
	next.UserID = userID
	m.records[userID] = next.Clone()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
