package jwt

import (
	"encoding/base64"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	cfg := Config{
		Key:       []byte("music-site-signing-key-0123456789"),
		Issuer:    "tunehub",
		Audience:  "tunehub-web",
		AccessTTL: 10 * time.Minute,
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	_, err := NewManager(Config{})
	require.ErrorIs(t, err, ErrMissingKey)

	_, err = NewManager(Config{Key: []byte("k"), AccessTTL: -time.Second})
	require.ErrorIs(t, err, ErrInvalidTTL)

	m, err := NewManager(Config{Key: []byte("k")})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, m.AccessTTL())
}

func TestIssueTokensRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	in := IdentityClaims("42", "alice", []string{"User", "Moderator"})

	access, refresh, err := m.IssueTokens(in)
	require.NoError(t, err)
	require.NotEmpty(t, access)

	raw, err := base64.StdEncoding.DecodeString(refresh)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	out, ok := m.ExtractClaims(access)
	require.True(t, ok)
	assert.Equal(t, "alice", Find(out, ClaimName))
	assert.Equal(t, "42", Find(out, ClaimNameIdentifier))
	assert.Equal(t, []string{"User", "Moderator"}, FindAll(out, ClaimRole))
	assert.True(t, m.IsAccessTokenValid(access))
}

func TestIssueTokensSingleAndNoRole(t *testing.T) {
	m := newTestManager(t, nil)

	access, _, err := m.IssueTokens(IdentityClaims("7", "bob", []string{"User"}))
	require.NoError(t, err)
	out, ok := m.ExtractClaims(access)
	require.True(t, ok)
	assert.Equal(t, []string{"User"}, FindAll(out, ClaimRole))

	access, _, err = m.IssueTokens(IdentityClaims("8", "carol", nil))
	require.NoError(t, err)
	out, ok = m.ExtractClaims(access)
	require.True(t, ok)
	assert.Empty(t, FindAll(out, ClaimRole))
}

func TestRefreshTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := NewRefreshToken()
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestIsAccessTokenValidExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	access, _, err := m.IssueTokens(IdentityClaims("1", "alice", []string{"User"}))
	require.NoError(t, err)

	clock.now = clock.now.Add(10*time.Minute - time.Second)
	assert.True(t, m.IsAccessTokenValid(access))

	for _, past := range []time.Duration{0, time.Second, time.Hour, 24 * time.Hour} {
		clock.now = time.Unix(1_700_000_000, 0).Add(10*time.Minute + past)
		assert.False(t, m.IsAccessTokenValid(access), "expired by %s", past)
	}
}

func TestExtractClaimsIgnoresExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	access, _, err := m.IssueTokens(IdentityClaims("9", "dave", []string{"User"}))
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)
	require.False(t, m.IsAccessTokenValid(access))

	out, ok := m.ExtractClaims(access)
	require.True(t, ok)
	assert.Equal(t, "9", Find(out, ClaimNameIdentifier))
}

func TestIsAccessTokenValidRejectsForeignTokens(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	sign := func(method gjwt.SigningMethod, key interface{}, claims gjwt.MapClaims) string {
		tok, err := gjwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	base := func() gjwt.MapClaims {
		return gjwt.MapClaims{
			ClaimNameIdentifier: "1",
			"iss":               "tunehub",
			"aud":               "tunehub-web",
			"exp":               now.Add(time.Minute).Unix(),
		}
	}

	good := sign(gjwt.SigningMethodHS256, []byte("music-site-signing-key-0123456789"), base())
	assert.True(t, m.IsAccessTokenValid(good))

	wrongKey := sign(gjwt.SigningMethodHS256, []byte("another-key-another-key-another"), base())
	assert.False(t, m.IsAccessTokenValid(wrongKey))
	_, ok := m.ExtractClaims(wrongKey)
	assert.False(t, ok)

	wrongIssuer := base()
	wrongIssuer["iss"] = "other"
	tok := sign(gjwt.SigningMethodHS256, []byte("music-site-signing-key-0123456789"), wrongIssuer)
	assert.False(t, m.IsAccessTokenValid(tok))
	_, ok = m.ExtractClaims(tok)
	assert.False(t, ok)

	wrongAudience := base()
	wrongAudience["aud"] = "other-api"
	tok = sign(gjwt.SigningMethodHS256, []byte("music-site-signing-key-0123456789"), wrongAudience)
	assert.False(t, m.IsAccessTokenValid(tok))

	noExpiry := base()
	delete(noExpiry, "exp")
	tok = sign(gjwt.SigningMethodHS256, []byte("music-site-signing-key-0123456789"), noExpiry)
	assert.False(t, m.IsAccessTokenValid(tok))

	hs384 := sign(gjwt.SigningMethodHS384, []byte("music-site-signing-key-0123456789"), base())
	assert.False(t, m.IsAccessTokenValid(hs384))
}

func TestExtractClaimsGarbage(t *testing.T) {
	m := newTestManager(t, nil)
	for _, in := range []string{"", "abc", "a.b.c", "....", "eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0."} {
		claims, ok := m.ExtractClaims(in)
		assert.False(t, ok, in)
		assert.Nil(t, claims, in)
		assert.False(t, m.IsAccessTokenValid(in), in)
	}
}

func TestValidateAccessPrincipal(t *testing.T) {
	m := newTestManager(t, nil)
	access, _, err := m.IssueTokens(IdentityClaims("55", "erin", []string{"User", "Admin"}))
	require.NoError(t, err)

	p, err := m.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "55", p.UserID)
	assert.Equal(t, "erin", p.Username)
	assert.True(t, p.HasRole("Admin"))
	assert.False(t, p.HasRole("Moderator"))
	assert.False(t, p.ExpiresAt.IsZero())

	_, err = m.ValidateAccess("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	anonymous, _, err := m.IssueTokens([]Claim{{Type: ClaimName, Value: "ghost"}})
	require.NoError(t, err)
	_, err = m.ValidateAccess(anonymous)
	require.ErrorIs(t, err, ErrInvalidToken)
}
