package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// errInsertRace reports that another transaction created the row between our
// locking read and the insert.
var errInsertRace = errors.New("session record created concurrently")

// PostgresRepository persists records in the session_records table, one row
// per user with the whitelist in a jsonb column.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectRecord = `SELECT id::text, user_id, sessions, created_at, updated_at
FROM session_records WHERE user_id = $1`

func (p *PostgresRepository) Find(ctx context.Context, userID string) (*Record, error) {
	return scanRecord(p.db.QueryRow(ctx, selectRecord, userID), userID)
}

// Mutate locks the user's row with SELECT ... FOR UPDATE, applies fn and
// writes the result in the same transaction. When the row does not exist yet
// and a concurrent transaction inserts it first, the whole mutation reruns
// against the committed row.
func (p *PostgresRepository) Mutate(ctx context.Context, userID string, fn MutateFunc) error {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		err := p.mutateOnce(ctx, userID, fn)
		if errors.Is(err, errInsertRace) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, userID)
}

func (p *PostgresRepository) mutateOnce(ctx context.Context, userID string, fn MutateFunc) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanRecord(tx.QueryRow(ctx, selectRecord+" FOR UPDATE", userID), userID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		current = nil
	case err != nil:
		return err
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}
	next.UserID = userID

	if current == nil {
		err = insertRecord(ctx, tx, next)
	} else {
		err = updateRecord(ctx, tx, next)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func scanRecord(row pgx.Row, userID string) (*Record, error) {
	var (
		rec Record
		raw []byte
	)
	err := row.Scan(&rec.ID, &rec.UserID, &raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rec.Sessions = make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Sessions); err != nil {
			return nil, fmt.Errorf("decode sessions for %q: %w", userID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func insertRecord(ctx context.Context, db execer, rec *Record) error {
	const q = `INSERT INTO session_records (id, user_id, sessions, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING`

	raw, err := marshalSessions(rec.Sessions)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, q, rec.ID, rec.UserID, raw, timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return errInsertRace
	}
	return nil
}

func updateRecord(ctx context.Context, db execer, rec *Record) error {
	const q = `UPDATE session_records SET sessions = $2, updated_at = $3 WHERE user_id = $1`

	raw, err := marshalSessions(rec.Sessions)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, q, rec.UserID, raw, timestamp(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func marshalSessions(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
