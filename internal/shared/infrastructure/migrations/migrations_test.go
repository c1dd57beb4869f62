package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/migrations"
)

func TestFiles(t *testing.T) {
	for _, driver := range []database.Driver{database.DriverSQLite, database.DriverPostgres} {
		t.Run(driver.String(), func(t *testing.T) {
			files, err := migrations.Files(driver)
			require.NoError(t, err)
			assert.Equal(t, []string{
				driver.String() + "/001_calendar.up.sql",
				driver.String() + "/002_sync_states.up.sql",
				driver.String() + "/003_outbox.up.sql",
			}, files)
		})
	}
}

func TestRun_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.Open(ctx, database.Config{
		SQLitePath: filepath.Join(t.TempDir(), "almanac.db"),
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, migrations.Run(ctx, conn))
	// Running again against the existing schema is a no-op.
	require.NoError(t, migrations.Run(ctx, conn))

	for _, table := range []string{"series", "events", "reminders", "sync_states", "outbox"} {
		var count int
		err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, table)
	}
}
