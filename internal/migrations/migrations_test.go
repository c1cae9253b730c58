package migrations

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %q", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSessionRecordsSchema(t *testing.T) {
	raw, err := files.ReadFile("sql/000002_session_records.up.sql")
	require.NoError(t, err)
	sql := string(raw)
	assert.Contains(t, sql, "user_id    TEXT NOT NULL UNIQUE")
	assert.Contains(t, sql, "JSONB")
}

func TestUpAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("AUTHCORE_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHCORE_DATABASE_URL not set, skipping postgres integration test")
	}
	require.NoError(t, Up(dsn))
	require.NoError(t, Up(dsn), "second run must be a no-op")

	v, dirty, err := Version(dsn)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, v)
}
