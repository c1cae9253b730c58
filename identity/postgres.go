package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tunehub/authcore/password"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps users in the users table and role membership in user_roles.
type PostgresStore struct {
	db     DB
	hasher password.Hasher
}

// NewPostgresStore returns a store over db.
func NewPostgresStore(db DB, hasher password.Hasher) *PostgresStore {
	return &PostgresStore{db: db, hasher: hasher}
}

func (p *PostgresStore) scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: load user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (p *PostgresStore) FindByName(ctx context.Context, username string) (*User, error) {
	return p.scanUser(p.db.QueryRow(ctx,
		`SELECT id::text, username, password_hash, created_at FROM users WHERE lower(username) = lower($1)`,
		username))
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return p.scanUser(p.db.QueryRow(ctx,
		`SELECT id::text, username, password_hash, created_at FROM users WHERE id = $1`,
		id))
}

func (p *PostgresStore) Create(ctx context.Context, username, pw string) (*User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	hash, err := p.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrDuplicateUsername
	}
	if err != nil {
		return nil, fmt.Errorf("identity: create user: %w", err)
	}
	return u, nil
}

func (p *PostgresStore) Roles(ctx context.Context, userID string) ([]string, error) {
	if _, err := p.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("identity: load roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("identity: load roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

func (p *PostgresStore) AddRole(ctx context.Context, userID, role string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, role)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("identity: add role: %w", err)
	}
	return nil
}

func (p *PostgresStore) RemoveRoles(ctx context.Context, userID string) error {
	if _, err := p.FindByID(ctx, userID); err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("identity: remove roles: %w", err)
	}
	return nil
}

// VerifyPassword checks pw and, on a match, re-hashes a hash made with
// weaker parameters. A failed re-hash leaves the old hash in place.
func (p *PostgresStore) VerifyPassword(ctx context.Context, user *User, pw string) (bool, error) {
	if user == nil {
		return false, ErrUserNotFound
	}
	ok, err := p.hasher.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		return ok, err
	}
	if hash, upgraded := rehash(p.hasher, user.PasswordHash, pw); upgraded {
		if _, err := p.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, user.ID, hash); err == nil {
			user.PasswordHash = hash
		}
	}
	return true, nil
}
