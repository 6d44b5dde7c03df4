package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_NilDB(t *testing.T) {
	_, err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db is nil")
}

func TestFiles_OrderedAndAnnotated(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.Equal(t, []string{
		"00001_identity.sql",
		"00002_sessions.sql",
		"00003_verification_tokens.sql",
	}, names)

	for _, n := range names {
		body, err := fs.ReadFile(embedMigrations, n)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(body), "-- +goose Up"), "%s must start with an Up annotation", n)
		assert.Contains(t, string(body), "-- +goose Down", "%s must be reversible", n)
	}
}

func TestIdentityMigration_SeedsKnownRoles(t *testing.T) {
	body, err := fs.ReadFile(embedMigrations, "00001_identity.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "('USER'), ('ADMIN')")
}
