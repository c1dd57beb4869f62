package domain

import (
	"context"
	"time"
)

// SeriesRepository persists series. Lookups return nil without an error
// when nothing matches.
type SeriesRepository interface {
	// FindByID finds a series by id.
	FindByID(ctx context.Context, id string) (*Series, error)

	// FindByFuzzyHash finds series whose content hash equals hash.
	FindByFuzzyHash(ctx context.Context, hash int64) ([]*Series, error)

	// FindByTitle finds series of the given kind with exactly this title.
	FindByTitle(ctx context.Context, kind ItemKind, title string) ([]*Series, error)

	// FindAll returns every series ordered by id.
	FindAll(ctx context.Context) ([]*Series, error)

	// Save inserts or updates a series.
	Save(ctx context.Context, series *Series) error

	// Delete removes a series.
	Delete(ctx context.Context, id string) error
}

// OccurrenceRepository persists materialized occurrences of one kind.
type OccurrenceRepository interface {
	// FindByID finds an occurrence by id.
	FindByID(ctx context.Context, id string) (*Occurrence, error)

	// FindByFuzzyHash finds occurrences whose content hash equals hash.
	FindByFuzzyHash(ctx context.Context, hash int64) ([]*Occurrence, error)

	// FindBySeries finds the materialized occurrences of a series.
	FindBySeries(ctx context.Context, seriesID string) ([]*Occurrence, error)

	// FindInRange finds occurrences starting within [from, to).
	FindInRange(ctx context.Context, from, to time.Time) ([]*Occurrence, error)

	// Count returns the number of stored occurrences.
	Count(ctx context.Context) (int, error)

	// Save inserts or updates an occurrence.
	Save(ctx context.Context, occurrence *Occurrence) error

	// Delete removes an occurrence.
	Delete(ctx context.Context, id string) error
}
