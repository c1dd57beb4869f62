package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
)

// Outcome is the effect of importing one raw item.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeMerged
	OutcomeDetached
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeMerged:
		return "merged"
	case OutcomeDetached:
		return "detached"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unchanged"
	}
}

// Engine reconciles raw items against the stored series and occurrences.
// It writes only through the transaction it is handed.
type Engine struct {
	cal    calmath.Calendar
	logger *slog.Logger
}

// NewEngine creates an import engine for the given calendar.
func NewEngine(cal calmath.Calendar, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cal: cal, logger: logger}
}

// Import classifies raw and applies it inside tx. It does nothing when the
// token has been cancelled. Invalid items are rejected with an error
// wrapping domain.ErrInvalidRawItem before anything is read.
func (e *Engine) Import(ctx context.Context, tx Tx, token Token, raw domain.RawItem) (Outcome, error) {
	cancelled, err := token.Cancelled(ctx)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to check generation: %w", err)
	}
	if cancelled {
		e.logger.Debug("import cancelled",
			"external_id", raw.ExternalID,
			"generation", token.Generation(),
		)
		return OutcomeCancelled, nil
	}
	if err := raw.Validate(); err != nil {
		return OutcomeUnchanged, err
	}

	if raw.Recurrence == nil && raw.Kind == domain.KindReminder && raw.IsMultiday() {
		raw = e.multidayAsSeries(raw)
	}

	series, err := tx.Series().FindByID(ctx, raw.ID())
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to find series %s: %w", raw.ID(), err)
	}
	if series != nil {
		return e.importSeriesMember(ctx, tx, series, raw)
	}

	if raw.Recurrence != nil {
		return e.importNewSeries(ctx, tx, raw)
	}

	if raw.Kind == domain.KindReminder {
		series, err := e.findSightedSeries(ctx, tx, raw)
		if err != nil {
			return OutcomeUnchanged, err
		}
		if series != nil {
			return e.importSeriesMember(ctx, tx, series, raw)
		}
	}

	if raw.Detached {
		return e.importOrphanInstance(ctx, tx, raw)
	}
	return e.importStandalone(ctx, tx, raw, raw.ID(), "", false)
}

// importOrphanInstance stores a detached instance sighted before its
// series. It is keyed by the id the series will generate for the original
// start, so instances of one series never share a row. cleanUp files it
// properly once the series arrives.
func (e *Engine) importOrphanInstance(ctx context.Context, tx Tx, raw domain.RawItem) (Outcome, error) {
	seriesID := raw.ID()
	var id string
	switch {
	case !raw.OriginalStart.IsZero():
		id = domain.GenerateOccurrenceID(seriesID, raw.OriginalStart)
	case raw.ExternalID != seriesID:
		id = raw.ExternalID
	default:
		id = domain.GenerateOccurrenceID(seriesID, raw.Start)
	}
	return e.importStandalone(ctx, tx, raw, id, seriesID, true)
}

// importSeriesMember handles a sighting of a known series: the series
// itself, a detached instance, or a plain instance.
func (e *Engine) importSeriesMember(ctx context.Context, tx Tx, series *domain.Series, raw domain.RawItem) (Outcome, error) {
	if raw.Recurrence != nil {
		return e.mergeSeries(ctx, tx, series, raw, true)
	}
	if raw.IsDetachedFormOf(e.cal, series) {
		id, err := e.detachedID(ctx, tx, series, raw.Kind, raw.Start, raw.OriginalStart)
		if err != nil {
			return OutcomeUnchanged, err
		}
		return e.importStandalone(ctx, tx, raw, id, series.ID(), true)
	}
	return e.mergeSeries(ctx, tx, series, raw, false)
}

func (e *Engine) importNewSeries(ctx context.Context, tx Tx, raw domain.RawItem) (Outcome, error) {
	series, err := domain.NewSeriesFromRaw(e.cal, raw)
	if err != nil {
		return OutcomeUnchanged, err
	}

	duplicates, err := tx.Series().FindByFuzzyHash(ctx, series.FuzzyHash())
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to find series by hash: %w", err)
	}
	for _, dup := range duplicates {
		if dup.Kind() == series.Kind() {
			e.logger.Debug("series collapsed into fuzzy duplicate",
				"external_id", raw.ExternalID,
				"series_id", dup.ID(),
			)
			return e.mergeSeries(ctx, tx, dup, raw, true)
		}
	}

	if err := tx.Series().Save(ctx, series); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to save series %s: %w", series.ID(), err)
	}
	if err := record(tx, domain.NewSeriesCreatedEvent(series)); err != nil {
		return OutcomeUnchanged, err
	}
	if err := e.cleanUp(ctx, tx, series); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeInserted, nil
}

// findSightedSeries finds a reminder series with the same title that fires
// at the reminder's start. Some sources emit recurring reminders without
// their rule.
func (e *Engine) findSightedSeries(ctx context.Context, tx Tx, raw domain.RawItem) (*domain.Series, error) {
	candidates, err := tx.Series().FindByTitle(ctx, domain.KindReminder, raw.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to find series by title: %w", err)
	}
	for _, s := range candidates {
		if raw.AllDay && s.Recurs(e.cal, raw.Start) {
			return s, nil
		}
		if !raw.AllDay && s.RecursAt(e.cal, raw.Start) {
			return s, nil
		}
	}
	return nil, nil
}

// multidayAsSeries turns a reminder spanning several days into a daily
// series with one occurrence per covered day.
func (e *Engine) multidayAsSeries(raw domain.RawItem) domain.RawItem {
	end := raw.EffectiveEnd()
	days := e.cal.DaysBetween(raw.Start, end)
	if !e.cal.StartOfDay(end).Equal(end) {
		days++
	}
	rec := domain.Daily(1)
	rec.Count = max(days, 1)
	raw.Recurrence = &rec
	if raw.AllDay {
		raw.End = e.cal.DayAfter(raw.Start)
	} else {
		raw.End = raw.Start
	}
	return raw
}

func (e *Engine) importStandalone(ctx context.Context, tx Tx, raw domain.RawItem, id, seriesID string, detached bool) (Outcome, error) {
	repo := Occurrences(tx, raw.Kind)

	existing, err := repo.FindByID(ctx, id)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to find occurrence %s: %w", id, err)
	}
	moved := false
	if existing == nil {
		duplicates, err := repo.FindByFuzzyHash(ctx, raw.FuzzyHash())
		if err != nil {
			return OutcomeUnchanged, fmt.Errorf("failed to find occurrences by hash: %w", err)
		}
		if len(duplicates) > 0 {
			existing = duplicates[0]
		}
		// A detached instance filed under another id of its own series
		// is moved to the id resolved now. Any other occurrence of the
		// series is a different instance and is left alone.
		if existing != nil && detached && seriesID != "" && existing.SeriesID() == seriesID {
			if !existing.WasDetached() {
				existing = nil
			} else {
				if existing, err = e.rekey(ctx, tx, existing, id, seriesID); err != nil {
					return OutcomeUnchanged, err
				}
				moved = true
			}
		}
	}
	if existing != nil {
		outcome, err := e.mergeOccurrence(ctx, tx, existing, raw, detached)
		if err == nil && moved && outcome == OutcomeUnchanged {
			outcome = OutcomeDetached
		}
		return outcome, err
	}

	occ, err := domain.NewOccurrenceFromRaw(id, seriesID, raw)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if detached {
		occ.MarkDetached()
	}
	if err := repo.Save(ctx, occ); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to save occurrence %s: %w", id, err)
	}
	if err := record(tx, domain.NewOccurrenceImportedEvent(occ)); err != nil {
		return OutcomeUnchanged, err
	}
	if !detached {
		return OutcomeInserted, nil
	}
	if err := record(tx, domain.NewOccurrenceDetachedEvent(occ, "")); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeDetached, nil
}

func record(tx Tx, event sharedDomain.DomainEvent) error {
	if err := tx.Record(event); err != nil {
		return fmt.Errorf("failed to record %s: %w", event.RoutingKey(), err)
	}
	return nil
}
