package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
       payload, metadata, created_at, published_at, next_retry_at, retry_count,
       last_error, dead_lettered_at, dead_letter_reason`

// SQLRepository implements Repository on any database.Connection. Saves
// join the transaction carried by the context, so events are stored in
// the same commit as the state change that produced them.
type SQLRepository struct {
	conn database.Connection
	now  func() time.Time
}

// NewSQLRepository creates a new outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, now: time.Now}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, r.exec(ctx), msg)
}

func (r *SQLRepository) insert(ctx context.Context, execer database.Executor, msg *Message) error {
	query := r.q(`
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, next_retry_at, dead_lettered_at, dead_letter_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	metadata := string(msg.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	return execer.QueryRow(ctx, query,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		msg.CreatedAt.UnixMilli(),
		millisPtr(msg.NextRetryAt),
		millisPtr(msg.DeadLetteredAt),
		msg.DeadLetterReason,
	).Scan(&msg.ID)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if tx := database.TxFromContext(ctx); tx != nil {
		for _, msg := range msgs {
			if err := r.insert(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := r.q(`
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?
	`)

	rows, err := r.exec(ctx).Query(ctx, query, r.now().UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	query := r.q(`UPDATE outbox SET published_at = ?, dead_lettered_at = NULL WHERE id = ?`)
	_, err := r.exec(ctx).Exec(ctx, query, r.now().UnixMilli(), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	query := r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = ?,
			next_retry_at = ?
		WHERE id = ?
	`)
	_, err := r.exec(ctx).Exec(ctx, query, errMsg, nextRetryAt.UnixMilli(), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	query := r.q(`
		UPDATE outbox
		SET dead_lettered_at = ?,
			dead_letter_reason = ?
		WHERE id = ?
	`)
	_, err := r.exec(ctx).Exec(ctx, query, r.now().UnixMilli(), reason, id)
	return err
}

// Backlog counts pending and dead-lettered messages.
func (r *SQLRepository) Backlog(ctx context.Context) (Backlog, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN published_at IS NULL AND dead_lettered_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN dead_lettered_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			MIN(CASE WHEN published_at IS NULL AND dead_lettered_at IS NULL THEN created_at END)
		FROM outbox
	`
	var (
		b      Backlog
		oldest sql.NullInt64
	)
	if err := r.exec(ctx).QueryRow(ctx, query).Scan(&b.Pending, &b.Dead, &oldest); err != nil {
		return Backlog{}, err
	}
	if oldest.Valid {
		b.OldestPending = time.UnixMilli(oldest.Int64).UTC()
	}
	return b, nil
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays).UnixMilli()
	query := r.q(`
		DELETE FROM outbox
		WHERE published_at IS NOT NULL
		  AND published_at < ?
	`)
	result, err := r.exec(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessages(rows database.Rows) ([]*Message, error) {
	var messages []*Message

	for rows.Next() {
		var (
			msg                                    Message
			eventID, payload, metadata             string
			createdAt                              int64
			publishedAt, nextRetryAt, deadLettered sql.NullInt64
			lastError, deadReason                  sql.NullString
		)
		err := rows.Scan(
			&msg.ID,
			&eventID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.RoutingKey,
			&payload,
			&metadata,
			&createdAt,
			&publishedAt,
			&nextRetryAt,
			&msg.RetryCount,
			&lastError,
			&deadLettered,
			&deadReason,
		)
		if err != nil {
			return nil, err
		}
		if msg.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, errors.Join(errors.New("outbox: malformed event id"), err)
		}
		msg.Payload = json.RawMessage(payload)
		msg.Metadata = json.RawMessage(metadata)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		msg.PublishedAt = timePtr(publishedAt)
		msg.NextRetryAt = timePtr(nextRetryAt)
		msg.DeadLetteredAt = timePtr(deadLettered)
		msg.LastError = stringPtr(lastError)
		msg.DeadLetterReason = stringPtr(deadReason)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func millisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
