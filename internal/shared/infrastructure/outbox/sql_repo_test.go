package outbox_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/outbox"
)

type resetEvent struct {
	domain.BaseEvent
}

func newSQLRepo(t *testing.T) (*outbox.SQLRepository, database.Connection) {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.Open(ctx, database.Config{
		SQLitePath: filepath.Join(t.TempDir(), "outbox.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return outbox.NewSQLRepository(conn), conn
}

func newResetMessage(t *testing.T) *outbox.Message {
	t.Helper()
	msg, err := outbox.NewMessage(&resetEvent{BaseEvent: domain.NewBaseEvent("store", "store", "store.reset")})
	require.NoError(t, err)
	return msg
}

func TestSQLRepository_SaveAndPublish(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSQLRepo(t)

	first := newResetMessage(t)
	second := newResetMessage(t)
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{first, second}))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.EventID, pending[0].EventID)
	assert.Equal(t, "store.reset", pending[0].RoutingKey)
	assert.JSONEq(t, string(first.Payload), string(pending[0].Payload))
	assert.Equal(t, first.CreatedAt.UnixMilli(), pending[0].CreatedAt.UnixMilli())

	require.NoError(t, repo.MarkPublished(ctx, first.ID))

	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestSQLRepository_FailedAndDead(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSQLRepo(t)

	msg := newResetMessage(t)
	require.NoError(t, repo.Save(ctx, msg))

	require.NoError(t, repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(-time.Second)))
	due, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	require.NotNil(t, due[0].LastError)
	assert.Equal(t, "broker down", *due[0].LastError)

	// Not yet due.
	require.NoError(t, repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().Add(time.Hour)))
	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	backlog, err := repo.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog.Pending)
	assert.Equal(t, msg.CreatedAt.UnixMilli(), backlog.OldestPending.UnixMilli())

	require.NoError(t, repo.MarkDead(ctx, msg.ID, "max retries exceeded"))
	backlog, err = repo.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, outbox.Backlog{Dead: 1}, backlog)
}

func TestSQLRepository_SaveJoinsContextTransaction(t *testing.T) {
	ctx := context.Background()
	repo, conn := newSQLRepo(t)

	uow := database.NewUnitOfWork(conn)
	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Save(txCtx, newResetMessage(t)))
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo, conn := newSQLRepo(t)

	msg := newResetMessage(t)
	require.NoError(t, repo.Save(ctx, msg))
	_, err := conn.Exec(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`,
		time.Now().AddDate(0, 0, -10).UnixMilli(), msg.ID)
	require.NoError(t, err)

	deleted, err := repo.DeleteOld(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
