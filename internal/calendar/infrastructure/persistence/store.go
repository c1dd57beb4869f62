// Package persistence stores series, occurrences and sync states in the
// shared SQL database.
package persistence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	sharedApplication "github.com/felixgeelhaar/almanac/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/outbox"
)

// Store implements application.Store on a database connection. Events
// recorded in a write transaction are stored in the outbox within the same
// commit.
type Store struct {
	conn   database.Connection
	uow    *database.UnitOfWork
	outbox outbox.Repository
	logger *slog.Logger
}

// NewStore creates a store. A nil outbox repository writes to the outbox
// table of conn.
func NewStore(conn database.Connection, outboxRepo outbox.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if outboxRepo == nil {
		outboxRepo = outbox.NewSQLRepository(conn)
	}
	return &Store{
		conn:   conn,
		uow:    database.NewUnitOfWork(conn),
		outbox: outboxRepo,
		logger: logger,
	}
}

// Write runs fn in a write transaction.
func (s *Store) Write(ctx context.Context, parent application.Tx, fn application.TxFunc) error {
	if parent != nil {
		return fn(ctx, parent)
	}

	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		tx := s.newTx(false)
		if err := fn(txCtx, tx); err != nil {
			return err
		}
		return tx.flush(txCtx)
	})
}

// Read runs fn against the committed state.
func (s *Store) Read(ctx context.Context, fn application.TxFunc) error {
	return fn(ctx, s.newTx(true))
}

// Clear deletes every series, event and reminder in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		execer := database.ExecutorFromContext(txCtx, s.conn)
		for _, table := range []string{"events", "reminders", "series"} {
			if _, err := execer.Exec(txCtx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		s.logger.Info("calendar store cleared")
		return nil
	})
}

func (s *Store) newTx(readOnly bool) *Tx {
	return &Tx{store: s, readOnly: readOnly}
}

// Tx is a transaction scope over a Store. Repositories resolve the
// database transaction from the context handed to each call.
type Tx struct {
	store    *Store
	readOnly bool

	mu      sync.Mutex
	pending []*outbox.Message
}

func (t *Tx) Series() domain.SeriesRepository {
	return NewSeriesRepository(t.store.conn)
}

func (t *Tx) Events() domain.OccurrenceRepository {
	return NewOccurrenceRepository(t.store.conn, domain.KindEvent)
}

func (t *Tx) Reminders() domain.OccurrenceRepository {
	return NewOccurrenceRepository(t.store.conn, domain.KindReminder)
}

// Record converts event into an outbox message stored on commit.
func (t *Tx) Record(event sharedDomain.DomainEvent) error {
	if t.readOnly {
		return application.ErrReadOnly
	}
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
	return nil
}

func (t *Tx) flush(ctx context.Context) error {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return t.store.outbox.SaveBatch(ctx, pending)
}
