package application

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
)

// ErrReadOnly is returned when a read scope attempts to record an event.
var ErrReadOnly = errors.New("store: transaction is read-only")

// Tx is a transaction scope over the store. Every engine write happens
// through a Tx handed down explicitly from Store.Write.
type Tx interface {
	Series() domain.SeriesRepository
	Events() domain.OccurrenceRepository
	Reminders() domain.OccurrenceRepository

	// Record stores a domain event for publication after commit.
	Record(event sharedDomain.DomainEvent) error
}

// TxFunc is a unit of work run inside a transaction scope.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the transactional persistence behind the engine.
type Store interface {
	// Write runs fn in a write transaction. When parent is non-nil fn runs
	// in parent and the caller owns commit and rollback; otherwise a new
	// transaction is begun, committed when fn succeeds and rolled back on
	// any error or panic.
	Write(ctx context.Context, parent Tx, fn TxFunc) error

	// Read runs fn against the committed state.
	Read(ctx context.Context, fn TxFunc) error

	// Clear deletes every series, event and reminder.
	Clear(ctx context.Context) error
}

// Occurrences returns the repository for occurrences of kind.
func Occurrences(tx Tx, kind domain.ItemKind) domain.OccurrenceRepository {
	if kind == domain.KindReminder {
		return tx.Reminders()
	}
	return tx.Events()
}
