package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tunehub/authcore/internal/requestctx"
)

// Store manages the per-user session whitelist on top of a Repository.
// Every operation resolves the caller's IP from ctx (see requestctx.WithClientIP)
// and never returns an error: failures are logged and reported as an Outcome.
type Store struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps repo.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// currentIP returns the client IP carried by ctx. A missing IP is logged and
// the empty string is used as the key.
func (s *Store) currentIP(ctx context.Context, op string) (string, bool) {
	ip, ok := requestctx.ClientIP(ctx)
	if !ok {
		s.logger.Error(requestctx.MissingIPMessage, zap.String("operation", op))
		return "", false
	}
	return ip, true
}

func (s *Store) applied(hasIP bool) Outcome {
	if hasIP {
		return OutcomeApplied
	}
	return OutcomeAppliedWithoutIP
}

func (s *Store) fail(op, userID string, err error) Outcome {
	s.logger.Error("session operation failed",
		zap.String("operation", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return OutcomeFailed
}

// EnforceSessionLimit clears every session of userID when the whitelist is
// full and the current IP is not already on it. It is a no-op when no record
// exists yet.
func (s *Store) EnforceSessionLimit(ctx context.Context, userID string) Outcome {
	const op = "enforce_session_limit"
	ip, hasIP := s.currentIP(ctx, op)

	var revoked int
	err := s.repo.Mutate(ctx, userID, func(rec *Record) (*Record, error) {
		revoked = 0
		if rec == nil {
			return nil, nil
		}
		if _, known := rec.Sessions[ip]; known || len(rec.Sessions) < MaxSessionsPerUser {
			return nil, nil
		}
		revoked = len(rec.Sessions)
		rec.Sessions = make(map[string]string, 1)
		rec.UpdatedAt = s.now().UTC()
		return rec, nil
	})
	if err != nil {
		return s.fail(op, userID, err)
	}
	if revoked == 0 {
		return OutcomeSkipped
	}

	s.revokedAll(userID, revoked)
	return s.applied(hasIP)
}

// UpsertRefreshToken stores refreshToken for the current IP, creating the
// record on first use. A new IP arriving at a full whitelist clears it first,
// so the map never holds more than MaxSessionsPerUser entries. Writers from
// different IPs never overwrite each other's entries.
func (s *Store) UpsertRefreshToken(ctx context.Context, userID, refreshToken string) Outcome {
	const op = "upsert_refresh_token"
	ip, hasIP := s.currentIP(ctx, op)

	var revoked int
	err := s.repo.Mutate(ctx, userID, func(rec *Record) (*Record, error) {
		revoked = 0
		now := s.now()
		if rec == nil {
			rec = NewRecord(userID, now)
		}
		if rec.Sessions == nil {
			rec.Sessions = make(map[string]string, 1)
		}
		if _, known := rec.Sessions[ip]; !known && len(rec.Sessions) >= MaxSessionsPerUser {
			revoked = len(rec.Sessions)
			rec.Sessions = make(map[string]string, 1)
		}
		rec.Sessions[ip] = refreshToken
		rec.UpdatedAt = now.UTC()
		return rec, nil
	})
	if err != nil {
		return s.fail(op, userID, err)
	}

	if revoked > 0 {
		s.revokedAll(userID, revoked)
	}
	return s.applied(hasIP)
}

func (s *Store) revokedAll(userID string, sessions int) {
	s.logger.Info("session whitelist full, revoking all devices",
		zap.String("user_id", userID),
		zap.Int("sessions", sessions),
	)
}

// GetRefreshToken returns the refresh token registered for userID at the
// current IP.
func (s *Store) GetRefreshToken(ctx context.Context, userID string) (string, bool) {
	const op = "get_refresh_token"
	ip, _ := s.currentIP(ctx, op)

	rec, err := s.repo.Find(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return "", false
	}
	if err != nil {
		s.fail(op, userID, err)
		return "", false
	}
	tok, ok := rec.Sessions[ip]
	return tok, ok
}

// RemoveSessionForCurrentIP drops the current IP's entry. Entries for other
// IPs are untouched.
func (s *Store) RemoveSessionForCurrentIP(ctx context.Context, userID string) Outcome {
	const op = "remove_session"
	ip, hasIP := s.currentIP(ctx, op)

	var removed bool
	err := s.repo.Mutate(ctx, userID, func(rec *Record) (*Record, error) {
		removed = false
		if rec == nil {
			return nil, nil
		}
		if _, ok := rec.Sessions[ip]; !ok {
			return nil, nil
		}
		delete(rec.Sessions, ip)
		rec.UpdatedAt = s.now().UTC()
		removed = true
		return rec, nil
	})
	if err != nil {
		return s.fail(op, userID, err)
	}
	if !removed {
		return OutcomeSkipped
	}
	return s.applied(hasIP)
}

// ClearAllSessions empties the whitelist of userID. The record itself is kept.
func (s *Store) ClearAllSessions(ctx context.Context, userID string) Outcome {
	const op = "clear_all_sessions"

	var cleared bool
	err := s.repo.Mutate(ctx, userID, func(rec *Record) (*Record, error) {
		cleared = false
		if rec == nil || len(rec.Sessions) == 0 {
			return nil, nil
		}
		rec.Sessions = make(map[string]string)
		rec.UpdatedAt = s.now().UTC()
		cleared = true
		return rec, nil
	})
	if err != nil {
		return s.fail(op, userID, err)
	}
	if !cleared {
		return OutcomeSkipped
	}
	return OutcomeApplied
}

// Sessions returns a copy of the whitelist of userID. A user without a record
// has no sessions.
func (s *Store) Sessions(ctx context.Context, userID string) (map[string]string, error) {
	rec, err := s.repo.Find(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Clone().Sessions, nil
}
