package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// detachedID resolves the generated id of the occurrence a detached
// instance replaces. The source's original start is used when it lies on
// the rule. Otherwise the instance's own day is tried, and failing that
// the nearest rule day on either side that already has a stored
// occurrence. This neighbor search is a heuristic: an instance moved past
// an adjacent occurrence resolves to the wrong day.
func (e *Engine) detachedID(ctx context.Context, tx Tx, series *domain.Series, kind domain.ItemKind, start, originalStart time.Time) (string, error) {
	if !originalStart.IsZero() && series.RecursIgnoringRange(e.cal, originalStart) {
		return series.OccurrenceID(e.cal, originalStart), nil
	}
	if series.RecursIgnoringRange(e.cal, start) {
		return series.OccurrenceID(e.cal, start), nil
	}

	rule, err := series.Rule(e.cal)
	if err != nil {
		return "", err
	}
	var neighbors []time.Time
	if prev, ok := rule.PreviousRecurringDate(start); ok {
		neighbors = append(neighbors, prev)
	}
	if next, ok := rule.NextRecurringDate(start); ok {
		neighbors = append(neighbors, next)
	}

	repo := Occurrences(tx, kind)
	for _, day := range neighbors {
		id := series.OccurrenceID(e.cal, day)
		occ, err := repo.FindByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to find occurrence %s: %w", id, err)
		}
		if occ != nil {
			return id, nil
		}
	}

	if len(neighbors) == 0 {
		return domain.GenerateOccurrenceID(series.ID(), start), nil
	}
	nearest := neighbors[0]
	for _, day := range neighbors[1:] {
		if absDays(e.cal.DaysBetween(start, day)) < absDays(e.cal.DaysBetween(start, nearest)) {
			nearest = day
		}
	}
	return series.OccurrenceID(e.cal, nearest), nil
}

func absDays(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
