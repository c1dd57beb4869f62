package application

import "context"

// UnitOfWork provides transactional support for aggregating multiple operations.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc is a function that executes within a unit of work.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork executes fn within a unit of work. The unit is committed
// when fn succeeds and rolled back when fn returns an error or panics; a
// panic is re-raised after the rollback.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			_ = uow.Rollback(txCtx)
		}
	}()

	if err := fn(txCtx); err != nil {
		done = true
		_ = uow.Rollback(txCtx)
		return err
	}

	done = true
	return uow.Commit(txCtx)
}
