package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
)

const occurrenceColumns = `id, series_id, title, detail, location, start_at, end_at, all_day,
       origin, status, engagement, was_detached, original_start, participants, alarms, links,
       last_modified`

// OccurrenceRepository implements domain.OccurrenceRepository over the
// events or reminders table.
type OccurrenceRepository struct {
	conn  database.Connection
	table string
	kind  domain.ItemKind
}

// NewOccurrenceRepository creates the repository for occurrences of kind.
func NewOccurrenceRepository(conn database.Connection, kind domain.ItemKind) *OccurrenceRepository {
	table := "events"
	if kind == domain.KindReminder {
		table = "reminders"
	}
	return &OccurrenceRepository{conn: conn, table: table, kind: kind}
}

func (r *OccurrenceRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *OccurrenceRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

func (r *OccurrenceRepository) selectFrom() string {
	return `SELECT ` + occurrenceColumns + ` FROM ` + r.table
}

// FindByID finds an occurrence by id.
func (r *OccurrenceRepository) FindByID(ctx context.Context, id string) (*domain.Occurrence, error) {
	row := r.exec(ctx).QueryRow(ctx, r.q(r.selectFrom()+` WHERE id = ?`), id)
	occurrence, err := r.scan(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return occurrence, err
}

// FindByFuzzyHash finds occurrences whose content hash equals hash.
func (r *OccurrenceRepository) FindByFuzzyHash(ctx context.Context, hash int64) ([]*domain.Occurrence, error) {
	return r.query(ctx, r.selectFrom()+` WHERE fuzzy_hash = ? ORDER BY start_at, id`, hash)
}

// FindBySeries finds the materialized occurrences of a series.
func (r *OccurrenceRepository) FindBySeries(ctx context.Context, seriesID string) ([]*domain.Occurrence, error) {
	return r.query(ctx, r.selectFrom()+` WHERE series_id = ? ORDER BY start_at, id`, seriesID)
}

// FindInRange finds occurrences starting within [from, to), and all-day
// occurrences overlapping it.
func (r *OccurrenceRepository) FindInRange(ctx context.Context, from, to time.Time) ([]*domain.Occurrence, error) {
	candidates, err := r.query(ctx,
		r.selectFrom()+` WHERE start_at < ? AND (start_at >= ? OR end_at > ?) ORDER BY start_at, id`,
		to.UnixMilli(), from.UnixMilli(), from.UnixMilli())
	if err != nil {
		return nil, err
	}
	result := candidates[:0]
	for _, o := range candidates {
		if o.InRange(from, to) {
			result = append(result, o)
		}
	}
	return result, nil
}

// Count returns the number of stored occurrences.
func (r *OccurrenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.exec(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM `+r.table).Scan(&count)
	return count, err
}

func (r *OccurrenceRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Occurrence, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Occurrence
	for rows.Next() {
		occurrence, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, occurrence)
	}
	return result, rows.Err()
}

// Save inserts or updates an occurrence.
func (r *OccurrenceRepository) Save(ctx context.Context, occurrence *domain.Occurrence) error {
	if occurrence.Kind() != r.kind {
		return fmt.Errorf("cannot store %s %s in %s", occurrence.Kind(), occurrence.ID(), r.table)
	}
	snap := occurrence.Snapshot()
	participants, err := encodeJSON(encodeParticipants(snap.Participants))
	if err != nil {
		return err
	}
	alarms, err := encodeJSON(encodeAlarms(snap.Alarms))
	if err != nil {
		return err
	}
	links, err := encodeJSON(encodeLinks(snap.Links))
	if err != nil {
		return err
	}

	query := r.q(`
		INSERT INTO ` + r.table + ` (
			id, series_id, title, detail, location, start_at, end_at, all_day,
			origin, status, engagement, was_detached, original_start, participants,
			alarms, links, fuzzy_hash, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			series_id = excluded.series_id,
			title = excluded.title,
			detail = excluded.detail,
			location = excluded.location,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			all_day = excluded.all_day,
			origin = excluded.origin,
			status = excluded.status,
			engagement = excluded.engagement,
			was_detached = excluded.was_detached,
			original_start = excluded.original_start,
			participants = excluded.participants,
			alarms = excluded.alarms,
			links = excluded.links,
			fuzzy_hash = excluded.fuzzy_hash,
			last_modified = excluded.last_modified
	`)

	_, err = r.exec(ctx).Exec(ctx, query,
		snap.ID,
		snap.SeriesID,
		snap.Title,
		snap.Detail,
		snap.Location,
		snap.Start.UnixMilli(),
		snap.End.UnixMilli(),
		snap.AllDay,
		snap.Origin.String(),
		snap.Status.String(),
		snap.Engagement.String(),
		snap.WasDetached,
		millis(snap.OriginalStart),
		participants,
		alarms,
		links,
		occurrence.FuzzyHash(),
		millis(snap.LastModified),
	)
	return err
}

// Delete removes an occurrence.
func (r *OccurrenceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`DELETE FROM `+r.table+` WHERE id = ?`), id)
	return err
}

func (r *OccurrenceRepository) scan(row database.Row) (*domain.Occurrence, error) {
	var (
		snap                        domain.OccurrenceSnapshot
		origin, status, engagement  string
		participants, alarms, links string
		start, end                  int64
		originalStart, lastModified sql.NullInt64
	)
	err := row.Scan(
		&snap.ID,
		&snap.SeriesID,
		&snap.Title,
		&snap.Detail,
		&snap.Location,
		&start,
		&end,
		&snap.AllDay,
		&origin,
		&status,
		&engagement,
		&snap.WasDetached,
		&originalStart,
		&participants,
		&alarms,
		&links,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	snap.Kind = r.kind
	if snap.Origin, err = parseOrigin(origin); err != nil {
		return nil, err
	}
	if snap.Status, err = parseStatus(status); err != nil {
		return nil, err
	}
	if snap.Engagement, err = parseEngagement(engagement); err != nil {
		return nil, err
	}

	var (
		participantRecords []participantRecord
		alarmRecords       []alarmRecord
		linkRecords        []linkRecord
	)
	if err := json.Unmarshal([]byte(participants), &participantRecords); err != nil {
		return nil, fmt.Errorf("malformed participants of %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(alarms), &alarmRecords); err != nil {
		return nil, fmt.Errorf("malformed alarms of %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(links), &linkRecords); err != nil {
		return nil, fmt.Errorf("malformed links of %s: %w", snap.ID, err)
	}
	if snap.Participants, err = decodeParticipants(participantRecords); err != nil {
		return nil, err
	}
	if snap.Alarms, err = decodeAlarms(alarmRecords); err != nil {
		return nil, err
	}
	snap.Links = decodeLinks(linkRecords)

	snap.Start = time.UnixMilli(start).UTC()
	snap.End = time.UnixMilli(end).UTC()
	snap.OriginalStart = fromMillis(originalStart)
	snap.LastModified = fromMillis(lastModified)

	return domain.RehydrateOccurrence(snap), nil
}
