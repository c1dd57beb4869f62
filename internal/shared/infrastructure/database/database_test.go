package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url  string
		want Driver
	}{
		{"", DriverSQLite},
		{"postgres://localhost/almanac", DriverPostgres},
		{"postgresql://localhost/almanac", DriverPostgres},
		{"sqlite:///tmp/almanac.db", DriverSQLite},
		{"file:almanac.db", DriverSQLite},
		{"/var/lib/almanac/data.sqlite3", DriverSQLite},
		{"host=localhost dbname=almanac", DriverPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDriver(tt.url))
		})
	}
}

func TestDriver_IsValid(t *testing.T) {
	assert.True(t, DriverPostgres.IsValid())
	assert.True(t, DriverSQLite.IsValid())
	assert.False(t, Driver("mysql").IsValid())
}

func TestIsNoRows(t *testing.T) {
	assert.False(t, IsNoRows(nil))
	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("find series: %w", ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("connection refused")))
}

func TestNewConnection(t *testing.T) {
	ctx := context.Background()

	_, err := NewConnection(ctx, Config{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")

	driversMu.Lock()
	saved := drivers
	drivers = map[Driver]Opener{}
	driversMu.Unlock()
	t.Cleanup(func() {
		driversMu.Lock()
		drivers = saved
		driversMu.Unlock()
	})

	_, err = NewConnection(ctx, Config{Driver: DriverPostgres, URL: "postgres://localhost/almanac"})
	assert.ErrorIs(t, err, ErrDriverNotRegistered)

	var got Config
	Register(DriverSQLite, func(_ context.Context, cfg Config) (Connection, error) {
		got = cfg
		return nil, errors.New("opened")
	})
	_, err = NewConnection(ctx, Config{Driver: "auto", SQLitePath: "a.db"})
	assert.EqualError(t, err, "opened")
	assert.Equal(t, "a.db", got.SQLitePath)
}

func TestEnsureDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "data.db")
	require.NoError(t, EnsureDirectory(path))
	assert.DirExists(t, filepath.Dir(path))
}

func TestTxFromContext_Empty(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
	_, ok := TxInfoFromContext(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, NewUnitOfWork(nil).Commit(context.Background()), ErrNoTransaction)
}
