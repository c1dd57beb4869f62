package application

import (
	"context"
	"iter"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// ItemQuery bounds an enumeration of raw items.
type ItemQuery struct {
	From time.Time
	To   time.Time

	// ModifiedAfter, when set, restricts the result to items changed
	// after the instant.
	ModifiedAfter time.Time
}

// RawItemProvider enumerates raw items from an external calendar source.
// Enumeration is lazy: breaking out of the range loop stops it. A non-nil
// error ends the sequence.
type RawItemProvider interface {
	Items(ctx context.Context, q ItemQuery) iter.Seq2[domain.RawItem, error]
}

// Source is a configured provider instance.
type Source struct {
	ID       string
	Type     domain.SourceType
	Provider RawItemProvider
}

// SliceProvider serves a fixed list of raw items, filtered by the query.
type SliceProvider []domain.RawItem

// Items yields the items that start within the query range, or overlap it
// when recurring, and were modified after ModifiedAfter.
func (p SliceProvider) Items(ctx context.Context, q ItemQuery) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		for _, raw := range p {
			if err := ctx.Err(); err != nil {
				yield(domain.RawItem{}, err)
				return
			}
			if !q.ModifiedAfter.IsZero() && !raw.LastModified.After(q.ModifiedAfter) {
				continue
			}
			if !matchesWindow(raw, q) {
				continue
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func matchesWindow(raw domain.RawItem, q ItemQuery) bool {
	if q.From.IsZero() && q.To.IsZero() {
		return true
	}
	if raw.Recurrence != nil {
		ended := !raw.RecurrenceEnd.IsZero() && raw.RecurrenceEnd.Before(q.From)
		return raw.Start.Before(q.To) && !ended
	}
	if !raw.Start.Before(q.From) {
		return raw.Start.Before(q.To)
	}
	return raw.EffectiveEnd().After(q.From)
}
