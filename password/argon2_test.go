package password

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps test hashing cheap while staying above the lower bounds.
func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinLength: 8}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, fastConfig())

	encoded, err := h.Hash("Secret123!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)

	ok, err := h.Verify("Secret123!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Secret123?", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	h := newHasher(t, fastConfig())
	a, err := h.Hash("Secret123!")
	require.NoError(t, err)
	b, err := h.Hash("Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsShortPassword(t *testing.T) {
	_, err := newHasher(t, fastConfig()).Hash("short")
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"min length":  func(c *Config) { c.MinLength = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := fastConfig()
			mutate(&cfg)
			_, err := NewArgon2(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newHasher(t, fastConfig())
	good, err := h.Hash("Secret123!")
	require.NoError(t, err)
	parts := strings.Split(good, "$")

	cases := map[string]string{
		"empty":         "",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuu",
		"argon2i":       strings.Replace(good, "argon2id", "argon2i", 1),
		"version":       strings.Replace(good, "v=19", "v=16", 1),
		"weak memory":   strings.Replace(good, "m=8192", "m=1024", 1),
		"unknown param": strings.Replace(good, "p=1", "x=1", 1),
		"bad salt":      strings.Join([]string{"", parts[1], parts[2], parts[3], "!!!", parts[5]}, "$"),
		"short key":     strings.Join([]string{"", parts[1], parts[2], parts[3], parts[4], "AAAA"}, "$"),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := h.Verify("Secret123!", encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
			assert.False(t, ok)
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, fastConfig())
	encoded, err := weak.Hash("Secret123!")
	require.NoError(t, err)

	up, err := weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, up)

	stronger := fastConfig()
	stronger.Time = 2
	up, err = newHasher(t, stronger).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up)
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	h := newHasher(t, fastConfig())
	encoded, err := h.Hash("Secret123!")
	require.NoError(t, err)

	parts := strings.Split(encoded, "$")
	salt, err := decodeB64(parts[4])
	require.NoError(t, err)
	key, err := decodeB64(parts[5])
	require.NoError(t, err)
	parts[4] = padded(salt)
	parts[5] = padded(key)

	ok, err := h.Verify("Secret123!", strings.Join(parts, "$"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func padded(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
