package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// Materializer produces the concrete occurrence of a series within a time
// range, creating and storing it on first access.
type Materializer struct {
	cal    calmath.Calendar
	logger *slog.Logger
}

// NewMaterializer creates a materializer for the given calendar.
func NewMaterializer(cal calmath.Calendar, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{cal: cal, logger: logger}
}

// Materialize returns the occurrence of kind for series within [from, to).
// A stored occurrence under the generated id is returned when it still
// falls in the range. Otherwise the occurrence is built from the template,
// stamped with the series' status and engagement, and saved. It returns
// nil when the series does not recur in the range.
func (m *Materializer) Materialize(ctx context.Context, tx Tx, series *domain.Series, kind domain.ItemKind, from, to time.Time) (*domain.Occurrence, error) {
	id, start, ok := series.OccurrenceIn(m.cal, from, to)
	if !ok {
		return nil, nil
	}

	repo := Occurrences(tx, kind)
	existing, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find occurrence %s: %w", id, err)
	}
	if existing != nil {
		if !existing.InRange(from, to) {
			m.logger.Debug("stored occurrence left the requested range",
				"occurrence_id", id,
				"start", existing.Start(),
			)
			return nil, nil
		}
		return existing, nil
	}

	occ := series.Template().Materialize(m.cal, kind, id, series.ID(), start)
	occ.SetStatus(series.Status())
	occ.SetEngagement(series.Engagement())
	if err := repo.Save(ctx, occ); err != nil {
		return nil, fmt.Errorf("failed to save occurrence %s: %w", id, err)
	}
	return occ, nil
}
