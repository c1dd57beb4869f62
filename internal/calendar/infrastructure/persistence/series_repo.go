package persistence

import (
	"context"
	"database/sql"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
)

const seriesColumns = `id, kind, title, creator, template, recurrence, start_at, end_at,
       origin, status, engagement, last_recurrence_day, referencing, last_modified`

// SeriesRepository implements domain.SeriesRepository.
type SeriesRepository struct {
	conn database.Connection
}

// NewSeriesRepository creates a series repository.
func NewSeriesRepository(conn database.Connection) *SeriesRepository {
	return &SeriesRepository{conn: conn}
}

func (r *SeriesRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SeriesRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindByID finds a series by id.
func (r *SeriesRepository) FindByID(ctx context.Context, id string) (*domain.Series, error) {
	query := r.q(`SELECT ` + seriesColumns + ` FROM series WHERE id = ?`)
	series, err := scanSeries(r.exec(ctx).QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return series, err
}

// FindByFuzzyHash finds series whose content hash equals hash.
func (r *SeriesRepository) FindByFuzzyHash(ctx context.Context, hash int64) ([]*domain.Series, error) {
	return r.query(ctx, `SELECT `+seriesColumns+` FROM series WHERE fuzzy_hash = ? ORDER BY id`, hash)
}

// FindByTitle finds series of the given kind with exactly this title.
func (r *SeriesRepository) FindByTitle(ctx context.Context, kind domain.ItemKind, title string) ([]*domain.Series, error) {
	return r.query(ctx, `SELECT `+seriesColumns+` FROM series WHERE kind = ? AND title = ? ORDER BY id`, kind.String(), title)
}

// FindAll returns every series ordered by id.
func (r *SeriesRepository) FindAll(ctx context.Context) ([]*domain.Series, error) {
	return r.query(ctx, `SELECT `+seriesColumns+` FROM series ORDER BY id`)
}

func (r *SeriesRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Series, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	return result, rows.Err()
}

// Save inserts or updates a series.
func (r *SeriesRepository) Save(ctx context.Context, series *domain.Series) error {
	snap := series.Snapshot()
	template, err := encodeTemplate(snap.Template)
	if err != nil {
		return err
	}
	recurrence, err := encodeRecurrence(snap.Recurrence)
	if err != nil {
		return err
	}

	query := r.q(`
		INSERT INTO series (
			id, kind, title, creator, template, recurrence, start_at, end_at,
			origin, status, engagement, last_recurrence_day, referencing,
			fuzzy_hash, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			creator = excluded.creator,
			template = excluded.template,
			recurrence = excluded.recurrence,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			origin = excluded.origin,
			status = excluded.status,
			engagement = excluded.engagement,
			last_recurrence_day = excluded.last_recurrence_day,
			referencing = excluded.referencing,
			fuzzy_hash = excluded.fuzzy_hash,
			last_modified = excluded.last_modified
	`)

	_, err = r.exec(ctx).Exec(ctx, query,
		snap.ID,
		snap.Kind.String(),
		snap.Title,
		snap.Creator,
		template,
		recurrence,
		snap.Start.UnixMilli(),
		millis(snap.End),
		snap.Origin.String(),
		snap.Status.String(),
		snap.Engagement.String(),
		millis(snap.LastRecurrenceDay),
		snap.Referencing,
		series.FuzzyHash(),
		millis(snap.LastModified),
	)
	return err
}

// Delete removes a series.
func (r *SeriesRepository) Delete(ctx context.Context, id string) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`DELETE FROM series WHERE id = ?`), id)
	return err
}

func scanSeries(row database.Row) (*domain.Series, error) {
	var (
		snap                                 domain.SeriesSnapshot
		kind, template, recurrence           string
		origin, status, engagement           string
		start                                int64
		end, lastRecurrenceDay, lastModified sql.NullInt64
	)
	err := row.Scan(
		&snap.ID,
		&kind,
		&snap.Title,
		&snap.Creator,
		&template,
		&recurrence,
		&start,
		&end,
		&origin,
		&status,
		&engagement,
		&lastRecurrenceDay,
		&snap.Referencing,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	if snap.Kind, err = parseKind(kind); err != nil {
		return nil, err
	}
	if snap.Origin, err = parseOrigin(origin); err != nil {
		return nil, err
	}
	if snap.Status, err = parseStatus(status); err != nil {
		return nil, err
	}
	if snap.Engagement, err = parseEngagement(engagement); err != nil {
		return nil, err
	}
	if snap.Template, err = decodeTemplate(template); err != nil {
		return nil, err
	}
	if snap.Recurrence, err = decodeRecurrence(recurrence); err != nil {
		return nil, err
	}
	snap.Start = fromMillis(sql.NullInt64{Int64: start, Valid: true})
	snap.End = fromMillis(end)
	snap.LastRecurrenceDay = fromMillis(lastRecurrenceDay)
	snap.LastModified = fromMillis(lastModified)

	return domain.RehydrateSeries(snap), nil
}
