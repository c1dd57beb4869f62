package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
)

func openTestDB(t *testing.T) database.Connection {
	t.Helper()
	conn, err := database.NewConnection(context.Background(), database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "almanac.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(context.Background(), `CREATE TABLE series (id TEXT PRIMARY KEY, title TEXT NOT NULL)`)
	require.NoError(t, err)
	return conn
}

func countSeries(t *testing.T, ex database.Executor) int {
	t.Helper()
	var n int
	require.NoError(t, ex.QueryRow(context.Background(), `SELECT COUNT(*) FROM series`).Scan(&n))
	return n
}

func TestOpen_RegisteredDriver(t *testing.T) {
	conn := openTestDB(t)

	assert.Equal(t, database.DriverSQLite, conn.Driver())
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"a.db?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		dsn("a.db"))
	assert.Contains(t, dsn("file:a.db?cache=shared"), "cache=shared&_pragma=journal_mode(WAL)")
}

func TestConnection_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)

	res, err := conn.Exec(ctx, `INSERT INTO series (id, title) VALUES (?, ?), (?, ?)`, "1", "Standup", "2", "Retro")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	rows, err := conn.Query(ctx, `SELECT title FROM series ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		require.NoError(t, rows.Scan(&title))
		titles = append(titles, title)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"Standup", "Retro"}, titles)

	var title string
	err = conn.QueryRow(ctx, `SELECT title FROM series WHERE id = ?`, "3").Scan(&title)
	assert.True(t, database.IsNoRows(err))
}

func TestUnitOfWork_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	uow := database.NewUnitOfWork(conn)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO series (id, title) VALUES (?, ?)`, "1", "Standup")
	require.NoError(t, err)
	require.NoError(t, uow.Commit(txCtx))
	assert.Equal(t, 1, countSeries(t, conn))

	txCtx, err = uow.Begin(ctx)
	require.NoError(t, err)
	_, err = database.ExecutorFromContext(txCtx, conn).Exec(txCtx, `INSERT INTO series (id, title) VALUES (?, ?)`, "2", "Retro")
	require.NoError(t, err)
	require.NoError(t, uow.Rollback(txCtx))
	assert.Equal(t, 1, countSeries(t, conn))
}

func TestUnitOfWork_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	uow := database.NewUnitOfWork(conn)

	outer, err := uow.Begin(ctx)
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	_, err = database.ExecutorFromContext(inner, conn).Exec(inner, `INSERT INTO series (id, title) VALUES (?, ?)`, "1", "Standup")
	require.NoError(t, err)

	// The inner commit leaves the transaction open for its owner.
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, uow.Rollback(outer))
	assert.Equal(t, 0, countSeries(t, conn))
}
