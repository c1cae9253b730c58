package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/cookie"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/internal/requestctx"
	"github.com/tunehub/authcore/password"
	"github.com/tunehub/authcore/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newEngine(t *testing.T) (*authcore.Engine, *identity.MemoryStore, *clock) {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinLength: 8,
	})
	require.NoError(t, err)

	cfg := authcore.DefaultConfig()
	cfg.JWT.Key = "0123456789abcdef0123456789abcdef"
	cfg.JWT.Issuer = "tunehub"
	cfg.JWT.Audience = "tunehub-web"
	cfg.Audit.Enabled = false

	users := identity.NewMemoryStore(hasher)
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithUserStore(users).
		WithSessionRepository(session.NewMemoryRepository()).
		WithClock(clk.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, users, clk
}

// register signs a user up from httptest's default remote address.
func register(t *testing.T, engine *authcore.Engine, username string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	ctx := requestctx.WithClientIP(context.Background(), "192.0.2.1")
	ok, err := engine.Register(ctx, rec, username, "Secret123!")
	require.NoError(t, err)
	require.True(t, ok)
	return rec.Result().Cookies()
}

type captured struct {
	authorization string
	renewal       authcore.RenewalResult
	ip            string
	principal     *authcore.Principal
}

func capture(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.authorization = r.Header.Get("Authorization")
		c.renewal, _ = RenewalFromContext(r.Context())
		c.ip, _ = requestctx.ClientIP(r.Context())
		c.principal, _ = authcore.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRenewalWithoutCookieSetsEmptyBearer(t *testing.T) {
	engine, _, _ := newEngine(t)
	var got captured

	rec := httptest.NewRecorder()
	Renewal(engine, nil)(capture(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "Bearer ", got.authorization)
	assert.Equal(t, authcore.RenewalAbsent, got.renewal.State)
	assert.Equal(t, "192.0.2.1", got.ip)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRenewalOverwritesAuthorizationHeader(t *testing.T) {
	engine, _, _ := newEngine(t)
	cookies := register(t, engine, "alice")
	var got captured

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	Renewal(engine, nil)(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)

	var access string
	for _, c := range cookies {
		if c.Name == cookie.AccessTokenName {
			access = c.Value
		}
	}
	assert.Equal(t, "Bearer "+access, got.authorization)
	assert.Equal(t, authcore.RenewalValid, got.renewal.State)
}

func TestRenewalRenewsExpiredToken(t *testing.T) {
	engine, _, clk := newEngine(t)
	cookies := register(t, engine, "bob")
	clk.Advance(15 * time.Minute)
	var got captured

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	Renewal(engine, nil)(capture(&got)).ServeHTTP(rec, req)

	require.Equal(t, authcore.RenewalRenewed, got.renewal.State)
	assert.Equal(t, "Bearer "+got.renewal.AccessToken, got.authorization)

	set := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		set[c.Name] = c.Value
	}
	assert.Equal(t, got.renewal.AccessToken, set[cookie.AccessTokenName])
	assert.NotEmpty(t, set[cookie.RefreshTokenName])
}

func TestRenewalForwardsStaleToken(t *testing.T) {
	engine, _, clk := newEngine(t)
	cookies := register(t, engine, "carl")
	clk.Advance(15 * time.Minute)
	var got captured

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	var access string
	for _, c := range cookies {
		req.AddCookie(c)
		if c.Name == cookie.AccessTokenName {
			access = c.Value
		}
	}
	rec := httptest.NewRecorder()
	Renewal(engine, nil)(capture(&got)).ServeHTTP(rec, req)

	assert.Equal(t, authcore.RenewalStale, got.renewal.State)
	assert.Equal(t, "Bearer "+access, got.authorization)
	assert.Empty(t, rec.Result().Cookies())
}

func TestClientIPKeepsExistingValue(t *testing.T) {
	var got captured
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestctx.WithClientIP(req.Context(), "203.0.113.9"))

	ClientIP(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", got.ip)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	ClientIP(capture(&got)).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "2001:db8::1", got.ip)
}

func TestGuard(t *testing.T) {
	engine, _, _ := newEngine(t)
	cookies := register(t, engine, "dina")
	var access string
	for _, c := range cookies {
		if c.Name == cookie.AccessTokenName {
			access = c.Value
		}
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"basic", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"garbage", "Bearer garbage", http.StatusUnauthorized},
		{"valid", "Bearer " + access, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got captured
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Guard(engine)(capture(&got)).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				require.NotNil(t, got.principal)
				assert.Equal(t, "dina", got.principal.Username)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	engine, users, _ := newEngine(t)
	cookies := register(t, engine, "eve")
	var access string
	for _, c := range cookies {
		if c.Name == cookie.AccessTokenName {
			access = c.Value
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	RequireRole(engine, identity.RoleModerator, identity.RoleAdmin)(capture(&captured{})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	u, err := users.FindByName(context.Background(), "eve")
	require.NoError(t, err)
	require.NoError(t, users.AddRole(context.Background(), u.ID, identity.RoleAdmin))

	rec = httptest.NewRecorder()
	login := httptest.NewRecorder()
	ok, err := engine.Login(requestctx.WithClientIP(context.Background(), "192.0.2.1"), login, "eve", "Secret123!")
	require.NoError(t, err)
	require.True(t, ok)
	for _, c := range login.Result().Cookies() {
		if c.Name == cookie.AccessTokenName {
			access = c.Value
		}
	}
	req.Header.Set("Authorization", "Bearer "+access)
	RequireRole(engine, identity.RoleModerator, identity.RoleAdmin)(capture(&captured{})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardNilValidator(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil)(capture(&captured{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
