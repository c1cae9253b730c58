package identity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/authcore/internal/migrations"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("AUTHCORE_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHCORE_DATABASE_URL not set, skipping postgres integration test")
	}
	require.NoError(t, migrations.Up(dsn))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresStore(pool, testHasher(t))
}

func TestPostgresStoreLifecycle(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("it-user-%d", time.Now().UnixNano())

	u, err := s.Create(ctx, name, "Secret123!")
	require.NoError(t, err)

	_, err = s.Create(ctx, name, "Secret123!")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	found, err := s.FindByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	ok, err := s.VerifyPassword(ctx, found, "Secret123!")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.AddRole(ctx, u.ID, RoleUser))
	require.NoError(t, s.AddRole(ctx, u.ID, RoleUser))
	roles, err := s.Roles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, roles)

	require.NoError(t, s.RemoveRoles(ctx, u.ID))
	roles, err = s.Roles(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = s.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
