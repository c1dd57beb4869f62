package outbox

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryRepository keeps messages in memory for dry runs and tests.
// Marking an unknown ID is a no-op, as it is for the SQL repository.
type InMemoryRepository struct {
	mu       sync.Mutex
	messages []*Message
	nextID   int64
	now      func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1, now: time.Now}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *InMemoryRepository) SaveBatch(_ context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		msg.ID = r.nextID
		r.nextID++
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = r.now()
		}
		r.messages = append(r.messages, msg)
	}
	return nil
}

// Messages returns every stored message in insertion order.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.messages...)
}

func (r *InMemoryRepository) GetUnpublished(_ context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var due []*Message
	for _, msg := range r.messages {
		if len(due) == limit {
			break
		}
		if msg.State(now) == StatePending {
			due = append(due, msg)
		}
	}
	return due, nil
}

func (r *InMemoryRepository) MarkPublished(_ context.Context, id int64) error {
	r.update(id, func(msg *Message, now time.Time) {
		msg.PublishedAt = &now
		msg.DeadLetteredAt = nil
	})
	return nil
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.update(id, func(msg *Message, _ time.Time) {
		msg.RetryCount++
		msg.LastError = &errMsg
		msg.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) MarkDead(_ context.Context, id int64, reason string) error {
	r.update(id, func(msg *Message, now time.Time) {
		msg.DeadLetteredAt = &now
		msg.DeadLetterReason = &reason
	})
	return nil
}

func (r *InMemoryRepository) update(id int64, fn func(*Message, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			fn(msg, r.now())
			return
		}
	}
}

func (r *InMemoryRepository) Backlog(context.Context) (Backlog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var b Backlog
	for _, msg := range r.messages {
		switch msg.State(now) {
		case StateDead:
			b.Dead++
		case StatePending, StateWaiting:
			b.Pending++
			if b.OldestPending.IsZero() || msg.CreatedAt.Before(b.OldestPending) {
				b.OldestPending = msg.CreatedAt
			}
		}
	}
	return b, nil
}

// DeleteOld drops published messages older than olderThanDays.
func (r *InMemoryRepository) DeleteOld(_ context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	before := len(r.messages)
	r.messages = slices.DeleteFunc(r.messages, func(msg *Message) bool {
		return msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff)
	})
	return int64(before - len(r.messages)), nil
}
