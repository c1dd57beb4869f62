package outbox

import (
	"context"
	"time"
)

// Writer appends messages. Stores call it inside their write transaction
// so a change and its events commit together.
type Writer interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error
}

// Repository is the relay's view of the outbox.
type Repository interface {
	Writer

	// GetUnpublished returns up to limit messages that are due, oldest
	// first. Messages waiting on a retry backoff are not due.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// Backlog summarizes what has not been delivered.
	Backlog(ctx context.Context) (Backlog, error)

	// DeleteOld removes messages published more than olderThanDays ago.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}

// Backlog counts undelivered messages.
type Backlog struct {
	Pending int64
	Dead    int64
	// OldestPending is the creation time of the oldest pending message,
	// zero when nothing is pending.
	OldestPending time.Time
}
