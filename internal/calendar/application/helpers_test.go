package application_test

import (
	"context"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/memory"
	"github.com/stretchr/testify/require"
)

var (
	utc     = calmath.UTC()
	baseMod = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2026, month, day, hour, minute, 0, 0, time.UTC)
}

func rawEvent(id, title string, start time.Time) domain.RawItem {
	return domain.RawItem{
		ExternalID:   id,
		CleanID:      id,
		Kind:         domain.KindEvent,
		Title:        title,
		Start:        start,
		End:          start.Add(time.Hour),
		CalendarID:   "work",
		Origin:       domain.OriginPersonal,
		LastModified: baseMod,
	}
}

func rawReminder(id, title string, start time.Time) domain.RawItem {
	raw := rawEvent(id, title, start)
	raw.Kind = domain.KindReminder
	raw.End = start
	return raw
}

// standupSeries is a weekly Monday 9:00 standup starting 2026-03-02.
func standupSeries() domain.RawItem {
	raw := rawEvent("standup", "Standup", at(time.March, 2, 9, 0))
	raw.End = raw.Start.Add(15 * time.Minute)
	rec := domain.Weekly(1, time.Monday)
	raw.Recurrence = &rec
	return raw
}

// standupInstance is an instance sighting of standupSeries on the given day.
func standupInstance(day int, title string) domain.RawItem {
	raw := rawEvent(fmt.Sprintf("standup_202603%02d", day), title, at(time.March, day, 9, 0))
	raw.CleanID = "standup"
	raw.End = raw.Start.Add(15 * time.Minute)
	return raw
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *application.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t:      t,
		ctx:    context.Background(),
		store:  memory.NewStore(),
		engine: application.NewEngine(utc, nil),
	}
}

func (h *harness) importRaw(raw domain.RawItem) application.Outcome {
	h.t.Helper()
	outcome, err := h.tryImport(application.Token{}, raw)
	require.NoError(h.t, err)
	return outcome
}

func (h *harness) tryImport(token application.Token, raw domain.RawItem) (application.Outcome, error) {
	var outcome application.Outcome
	err := h.store.Write(h.ctx, nil, func(ctx context.Context, tx application.Tx) error {
		var err error
		outcome, err = h.engine.Import(ctx, tx, token, raw)
		return err
	})
	return outcome, err
}

func (h *harness) series(id string) *domain.Series {
	h.t.Helper()
	var s *domain.Series
	require.NoError(h.t, h.store.Read(h.ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		s, err = tx.Series().FindByID(ctx, id)
		return err
	}))
	return s
}

func (h *harness) allSeries() []*domain.Series {
	h.t.Helper()
	var all []*domain.Series
	require.NoError(h.t, h.store.Read(h.ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		all, err = tx.Series().FindAll(ctx)
		return err
	}))
	return all
}

func (h *harness) occurrence(kind domain.ItemKind, id string) *domain.Occurrence {
	h.t.Helper()
	var o *domain.Occurrence
	require.NoError(h.t, h.store.Read(h.ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		o, err = application.Occurrences(tx, kind).FindByID(ctx, id)
		return err
	}))
	return o
}

func (h *harness) count(kind domain.ItemKind) int {
	h.t.Helper()
	var n int
	require.NoError(h.t, h.store.Read(h.ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		n, err = application.Occurrences(tx, kind).Count(ctx)
		return err
	}))
	return n
}

func (h *harness) materialize(seriesID string, kind domain.ItemKind, from, to time.Time) *domain.Occurrence {
	h.t.Helper()
	m := application.NewMaterializer(utc, nil)
	var occ *domain.Occurrence
	require.NoError(h.t, h.store.Write(h.ctx, nil, func(ctx context.Context, tx application.Tx) error {
		s, err := tx.Series().FindByID(ctx, seriesID)
		if err != nil {
			return err
		}
		require.NotNil(h.t, s)
		occ, err = m.Materialize(ctx, tx, s, kind, from, to)
		return err
	}))
	return occ
}

// providerFunc adapts a function to application.RawItemProvider.
type providerFunc func(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error]

func (f providerFunc) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return f(ctx, q)
}

// movedInstance is standupSeries' instance of March from, moved to March
// to, as a source reports it: flagged detached with its original start.
func movedInstance(from, to int, title string) domain.RawItem {
	raw := standupInstance(to, title)
	raw.ExternalID = fmt.Sprintf("standup_202603%02d", from)
	raw.Detached = true
	raw.OriginalStart = at(time.March, from, 9, 0)
	raw.LastModified = baseMod.Add(time.Hour)
	return raw
}
