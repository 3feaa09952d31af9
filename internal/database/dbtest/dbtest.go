// Package dbtest provides a migrated in-memory database for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-otp-auth/internal/database"
)

// New returns a fresh migrated SQLite database closed at test cleanup.
func New(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.MigrateUp(ctx, db))
	return db
}
