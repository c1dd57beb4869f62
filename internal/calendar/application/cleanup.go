package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// cleanUp reconciles records stored before a newly created series was
// known. A standalone record under the series id is dropped, unless it is
// a detached form, which moves to its generated occurrence id. Detached
// instances already filed under the series are moved to the id the rule
// resolves for them.
func (e *Engine) cleanUp(ctx context.Context, tx Tx, series *domain.Series) error {
	repo := Occurrences(tx, series.Kind())
	old, err := repo.FindByID(ctx, series.ID())
	if err != nil {
		return fmt.Errorf("failed to find occurrence %s: %w", series.ID(), err)
	}
	if old != nil {
		if err := e.fileStandalone(ctx, tx, series, old); err != nil {
			return err
		}
	}

	members, err := repo.FindBySeries(ctx, series.ID())
	if err != nil {
		return fmt.Errorf("failed to find occurrences of %s: %w", series.ID(), err)
	}
	for _, occ := range members {
		if !occ.WasDetached() {
			continue
		}
		id, err := e.detachedID(ctx, tx, series, occ.Kind(), occ.Start(), occ.OriginalStart())
		if err != nil {
			return err
		}
		if id == occ.ID() {
			continue
		}
		taken, err := repo.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to find occurrence %s: %w", id, err)
		}
		if taken != nil {
			if err := repo.Delete(ctx, occ.ID()); err != nil {
				return fmt.Errorf("failed to delete occurrence %s: %w", occ.ID(), err)
			}
			if err := record(tx, domain.NewOccurrenceRemovedEvent(occ, series.ID())); err != nil {
				return err
			}
			continue
		}
		if _, err := e.rekey(ctx, tx, occ, id, series.ID()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fileStandalone(ctx context.Context, tx Tx, series *domain.Series, old *domain.Occurrence) error {
	if !old.IsDetachedFormOf(e.cal, series) {
		if err := Occurrences(tx, old.Kind()).Delete(ctx, old.ID()); err != nil {
			return fmt.Errorf("failed to delete occurrence %s: %w", old.ID(), err)
		}
		return record(tx, domain.NewOccurrenceRemovedEvent(old, series.ID()))
	}

	id, err := e.detachedID(ctx, tx, series, old.Kind(), old.Start(), old.OriginalStart())
	if err != nil {
		return err
	}
	_, err = e.rekey(ctx, tx, old, id, series.ID())
	return err
}

// rekey moves old under id, attached to seriesID and marked detached.
func (e *Engine) rekey(ctx context.Context, tx Tx, old *domain.Occurrence, id, seriesID string) (*domain.Occurrence, error) {
	repo := Occurrences(tx, old.Kind())
	rekeyed := old.Rekey(id, seriesID)
	if err := repo.Save(ctx, rekeyed); err != nil {
		return nil, fmt.Errorf("failed to save occurrence %s: %w", id, err)
	}
	if err := repo.Delete(ctx, old.ID()); err != nil {
		return nil, fmt.Errorf("failed to delete occurrence %s: %w", old.ID(), err)
	}
	e.logger.Debug("occurrence moved under series",
		"series_id", seriesID,
		"from", old.ID(),
		"occurrence_id", id,
	)
	if err := record(tx, domain.NewOccurrenceDetachedEvent(rekeyed, old.ID())); err != nil {
		return nil, err
	}
	return rekeyed, nil
}
