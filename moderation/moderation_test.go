package moderation

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/password"
	"github.com/tunehub/authcore/session"
)

type recordingClearer struct {
	calls []string
	users *identity.MemoryStore
	// rolesAtClear captures the role set seen when sessions were cleared.
	rolesAtClear []string
}

func (r *recordingClearer) ClearAllSessions(ctx context.Context, userID string) session.Outcome {
	r.calls = append(r.calls, userID)
	r.rolesAtClear, _ = r.users.Roles(ctx, userID)
	return session.OutcomeApplied
}

func newUsers(t *testing.T) *identity.MemoryStore {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinLength: 8,
	})
	require.NoError(t, err)
	return identity.NewMemoryStore(h)
}

func TestBanClearsSessionsBeforeRoles(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	u, err := users.Create(ctx, "mallory", "Secret123!")
	require.NoError(t, err)
	require.NoError(t, users.AddRole(ctx, u.ID, identity.RoleUser))

	clearer := &recordingClearer{users: users}
	svc := NewService(users, clearer, nil)

	require.NoError(t, svc.Ban(ctx, u.ID))
	assert.Equal(t, []string{u.ID}, clearer.calls)
	assert.Equal(t, []string{identity.RoleUser}, clearer.rolesAtClear)

	roles, err := users.Roles(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	assert.ErrorIs(t, svc.Promote(ctx, u.ID), ErrBanned)

	require.NoError(t, svc.Unban(ctx, u.ID))
	require.NoError(t, svc.Promote(ctx, u.ID))
	roles, err = users.Roles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{identity.RoleModerator, identity.RoleUser}, roles)
}

func TestBanUnknownUser(t *testing.T) {
	svc := NewService(newUsers(t), &recordingClearer{}, nil)
	assert.ErrorIs(t, svc.Ban(context.Background(), "missing"), identity.ErrUserNotFound)
}

func TestBannedUserLoginHasNoSession(t *testing.T) {
	ctx := authcore.WithClientIP(context.Background(), "10.0.0.1")
	users := newUsers(t)

	cfg := authcore.DefaultConfig()
	cfg.JWT.Key = "0123456789abcdef0123456789abcdef"
	cfg.JWT.Issuer = "tunehub"
	cfg.JWT.Audience = "tunehub-web"
	cfg.Audit.Enabled = false
	engine, err := authcore.New().
		WithConfig(cfg).
		WithUserStore(users).
		WithSessionRepository(session.NewMemoryRepository()).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	ok, err := engine.Register(ctx, httptest.NewRecorder(), "trudy", "Secret123!")
	require.NoError(t, err)
	require.True(t, ok)
	u, err := users.FindByName(ctx, "trudy")
	require.NoError(t, err)

	require.NoError(t, NewService(users, engine, nil).Ban(ctx, u.ID))

	ips, err := engine.Sessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, ips)

	rec := httptest.NewRecorder()
	res, err := engine.LoginWithResult(ctx, rec, "trudy", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, authcore.LoginBanned, res)
	assert.Empty(t, rec.Result().Cookies())
}
