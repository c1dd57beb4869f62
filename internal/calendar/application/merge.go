package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// linkable is implemented by records that remember the external entries
// they were imported from.
type linkable interface {
	Link(link domain.Link) bool
}

func relink(target any, link domain.Link) bool {
	l, ok := target.(linkable)
	if !ok {
		return false
	}
	return l.Link(link)
}

// mergeSeries folds a sighting into a stored series. Content is taken from
// the sighting only when it is the series itself and strictly newer.
// Nothing is written when the merge changes nothing.
func (e *Engine) mergeSeries(ctx context.Context, tx Tx, series *domain.Series, raw domain.RawItem, master bool) (Outcome, error) {
	wasArchived := series.Status() == domain.StatusArchived
	changed := false
	reason := ""

	if len(series.Participants()) == 0 && len(raw.Participants) > 0 {
		series.SetParticipants(raw.Participants)
		status, engagement := raw.Status()
		series.SetStatus(status)
		series.SetEngagement(engagement)
		reason = "declined"
		changed = true
	}
	if origin := series.Origin().Winner(raw.Origin); origin != series.Origin() {
		series.SetOrigin(origin)
		changed = true
	}
	if relink(series, raw.Link()) {
		changed = true
	}
	if master && series.ApplyContent(e.cal, raw) {
		changed = true
	}
	if master && raw.Cancelled && series.Status() != domain.StatusArchived {
		series.Archive()
		reason = "cancelled"
		changed = true
	}
	if !changed {
		return OutcomeUnchanged, nil
	}

	if err := tx.Series().Save(ctx, series); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to save series %s: %w", series.ID(), err)
	}
	if err := record(tx, domain.NewSeriesMergedEvent(series, raw.ExternalID)); err != nil {
		return OutcomeUnchanged, err
	}
	if !wasArchived && series.Status() == domain.StatusArchived {
		if err := record(tx, domain.NewSeriesArchivedEvent(series.ID(), reason)); err != nil {
			return OutcomeUnchanged, err
		}
	}
	return OutcomeMerged, nil
}

// mergeOccurrence folds a sighting into a stored event or reminder. A
// detachment merge flags the occurrence as detached. Local edits survive
// unless the sighting is strictly newer.
func (e *Engine) mergeOccurrence(ctx context.Context, tx Tx, occ *domain.Occurrence, raw domain.RawItem, detachment bool) (Outcome, error) {
	changed := false

	if len(occ.Participants()) == 0 && len(raw.Participants) > 0 {
		occ.SetParticipants(raw.Participants)
		status, engagement := raw.Status()
		occ.SetStatus(status)
		occ.SetEngagement(engagement)
		changed = true
	}
	if origin := occ.Origin().Winner(raw.Origin); origin != occ.Origin() {
		occ.SetOrigin(origin)
		changed = true
	}
	flipped := detachment && !occ.WasDetached()
	if flipped {
		occ.MarkDetached()
		changed = true
	}
	if relink(occ, raw.Link()) {
		changed = true
	}
	if occ.ApplyContent(raw) {
		if raw.Cancelled {
			occ.Archive()
		}
		changed = true
	}
	if !changed {
		return OutcomeUnchanged, nil
	}

	if err := Occurrences(tx, occ.Kind()).Save(ctx, occ); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to save occurrence %s: %w", occ.ID(), err)
	}
	if err := record(tx, domain.NewOccurrenceMergedEvent(occ, raw.ExternalID)); err != nil {
		return OutcomeUnchanged, err
	}
	if !flipped {
		return OutcomeMerged, nil
	}
	if err := record(tx, domain.NewOccurrenceDetachedEvent(occ, "")); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeDetached, nil
}
