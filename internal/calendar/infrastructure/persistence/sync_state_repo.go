package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const syncStateColumns = `id, source_id, source_type, sync_cursor, last_synced_at,
       items_seen, sync_errors, last_error, created_at, updated_at`

// SyncStateRepository implements domain.SyncStateRepository.
type SyncStateRepository struct {
	conn database.Connection
}

// NewSyncStateRepository creates a new sync state repository.
func NewSyncStateRepository(conn database.Connection) *SyncStateRepository {
	return &SyncStateRepository{conn: conn}
}

func (r *SyncStateRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Save persists a sync state (create or update).
func (r *SyncStateRepository) Save(ctx context.Context, state *domain.SyncState) error {
	query := database.Rebind(r.conn.Driver(), `
		INSERT INTO sync_states (
			id, source_id, source_type, sync_cursor, last_synced_at,
			items_seen, sync_errors, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			source_type = excluded.source_type,
			sync_cursor = excluded.sync_cursor,
			last_synced_at = excluded.last_synced_at,
			items_seen = excluded.items_seen,
			sync_errors = excluded.sync_errors,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`)

	snap := state.Snapshot()
	_, err := r.exec(ctx).Exec(ctx, query,
		snap.ID.String(),
		snap.SourceID,
		snap.SourceType.String(),
		snap.Cursor,
		millis(snap.LastSyncedAt),
		snap.ItemsSeen,
		snap.SyncErrors,
		snap.LastError,
		snap.CreatedAt.UnixMilli(),
		snap.UpdatedAt.UnixMilli(),
	)
	return err
}

// FindBySource finds the sync state of a source.
func (r *SyncStateRepository) FindBySource(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	query := database.Rebind(r.conn.Driver(), `SELECT `+syncStateColumns+` FROM sync_states WHERE source_id = ?`)
	state, err := scanSyncState(r.exec(ctx).QueryRow(ctx, query, sourceID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return state, err
}

// FindAll returns every sync state ordered by source id.
func (r *SyncStateRepository) FindAll(ctx context.Context) ([]*domain.SyncState, error) {
	rows, err := r.exec(ctx).Query(ctx, `SELECT `+syncStateColumns+` FROM sync_states ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// DeleteAll removes every sync state.
func (r *SyncStateRepository) DeleteAll(ctx context.Context) error {
	_, err := r.exec(ctx).Exec(ctx, `DELETE FROM sync_states`)
	return err
}

func scanSyncState(row database.Row) (*domain.SyncState, error) {
	var (
		snap                 domain.SyncStateSnapshot
		id, sourceType       string
		lastSyncedAt         sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&id,
		&snap.SourceID,
		&sourceType,
		&snap.Cursor,
		&lastSyncedAt,
		&snap.ItemsSeen,
		&snap.SyncErrors,
		&snap.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	snap.SourceType = domain.SourceType(sourceType)
	snap.LastSyncedAt = fromMillis(lastSyncedAt)
	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	snap.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return domain.RehydrateSyncState(snap), nil
}
