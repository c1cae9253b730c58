package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxSessionsPerUser bounds the per-user session whitelist. Adding a sixth
// distinct IP clears every other device first.
const MaxSessionsPerUser = 5

var (
	// ErrRecordNotFound is returned by a Repository when no record exists for the user.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrConflict is returned by Repository.Mutate when concurrent writers kept
	// invalidating the read after every retry.
	ErrConflict = errors.New("session record update conflict")
	// ErrBackendUnavailable wraps transport failures of a repository backend.
	ErrBackendUnavailable = errors.New("session backend unavailable")
)

// Record is the single session row owned by a user. Sessions maps a client IP
// to the refresh token currently valid for it.
type Record struct {
	ID        string
	UserID    string
	Sessions  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord returns an empty record for userID with a fresh id.
func NewRecord(userID string, now time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Sessions:  make(map[string]string, 1),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Sessions = make(map[string]string, len(r.Sessions))
	for ip, tok := range r.Sessions {
		out.Sessions[ip] = tok
	}
	return &out
}

// Outcome classifies what a Store operation did. Store operations never
// return errors; callers and tests inspect the Outcome instead.
type Outcome int

const (
	// OutcomeApplied means the mutation was persisted.
	OutcomeApplied Outcome = iota
	// OutcomeAppliedWithoutIP means the mutation was persisted under the empty IP key.
	OutcomeAppliedWithoutIP
	// OutcomeSkipped means there was nothing to do.
	OutcomeSkipped
	// OutcomeFailed means the backend failed; the failure was logged.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAppliedWithoutIP:
		return "applied_without_ip"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Persisted reports whether the operation wrote to the backend.
func (o Outcome) Persisted() bool {
	return o == OutcomeApplied || o == OutcomeAppliedWithoutIP
}
