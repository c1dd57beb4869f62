package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func standupRaw(count int) domain.RawItem {
	rec := domain.Weekly(1, time.Monday)
	rec.Count = count
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.RawItem{
		ExternalID:   "standup",
		CleanID:      "standup",
		Kind:         domain.KindEvent,
		Title:        "Standup",
		Start:        start,
		End:          start.Add(15 * time.Minute),
		Recurrence:   &rec,
		CalendarID:   "work",
		Origin:       domain.OriginPersonal,
		LastModified: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newStandup(t *testing.T, count int) *domain.Series {
	t.Helper()
	s, err := domain.NewSeriesFromRaw(calmath.UTC(), standupRaw(count))
	require.NoError(t, err)
	return s
}

func TestNewSeriesFromRaw(t *testing.T) {
	s := newStandup(t, 0)

	assert.Equal(t, "standup", s.ID())
	assert.Equal(t, "Standup", s.Title())
	assert.Equal(t, domain.KindEvent, s.Kind())
	assert.Equal(t, 9, s.Template().StartHour)
	assert.Equal(t, 15, s.Template().DurationMinutes)
	assert.Equal(t, domain.StatusActive, s.Status())
	assert.True(t, s.End().IsZero())
	assert.Equal(t, []domain.Link{{CalendarID: "work", ExternalID: "standup"}}, s.Template().Links)
}

func TestNewSeriesFromRaw_Errors(t *testing.T) {
	raw := standupRaw(0)
	raw.Recurrence = nil
	_, err := domain.NewSeriesFromRaw(calmath.UTC(), raw)
	assert.ErrorIs(t, err, domain.ErrInvalidRawItem)

	raw = standupRaw(2_000_000)
	_, err = domain.NewSeriesFromRaw(calmath.UTC(), raw)
	assert.ErrorIs(t, err, domain.ErrUnreasonableCount)

	raw = standupRaw(0)
	raw.CleanID, raw.ExternalID = "", ""
	_, err = domain.NewSeriesFromRaw(calmath.UTC(), raw)
	assert.ErrorIs(t, err, domain.ErrEmptySeriesID)
}

func TestNewSeriesFromRaw_UntilIsInclusive(t *testing.T) {
	cal := calmath.UTC()
	raw := standupRaw(0)
	raw.RecurrenceEnd = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	s, err := domain.NewSeriesFromRaw(cal, raw)
	require.NoError(t, err)

	assert.True(t, s.Recurs(cal, day(2026, 3, 16)))
	assert.False(t, s.Recurs(cal, day(2026, 3, 23)))
}

func TestNewSeriesFromRaw_DeclinedIsArchived(t *testing.T) {
	raw := standupRaw(0)
	raw.Participants = []domain.Participant{
		{Email: "me@example.com", Status: domain.ParticipantDeclined, IsCurrentUser: true},
	}

	s, err := domain.NewSeriesFromRaw(calmath.UTC(), raw)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusArchived, s.Status())
	assert.Equal(t, domain.EngagementDeclined, s.Engagement())
}

func TestSeries_OccurrenceIn(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 0)

	id, start, ok := s.OccurrenceIn(cal, day(2026, 3, 9), day(2026, 3, 10))
	require.True(t, ok)
	assert.Equal(t, "standup-2026.3.9.9:0", id)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), start)

	_, _, ok = s.OccurrenceIn(cal, day(2026, 3, 10), day(2026, 3, 11))
	assert.False(t, ok)

	_, _, ok = s.OccurrenceIn(cal, time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), day(2026, 3, 10))
	assert.False(t, ok, "the occurrence starts before the range")
}

func TestSeries_CountTruncationIsCached(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 3)

	assert.True(t, s.CachedLastRecurrenceDay().IsZero())
	assert.True(t, s.Recurs(cal, day(2026, 3, 16)))
	assert.False(t, s.Recurs(cal, day(2026, 3, 23)))
	assert.Equal(t, day(2026, 3, 16), s.CachedLastRecurrenceDay())

	s.SetStart(time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC))
	assert.True(t, s.CachedLastRecurrenceDay().IsZero())
	assert.False(t, s.Recurs(cal, day(2026, 3, 16)))
	assert.Equal(t, day(2026, 3, 9), s.CachedLastRecurrenceDay())
}

func TestSeries_CloneAs(t *testing.T) {
	s := newStandup(t, 0)
	s.SetParticipants([]domain.Participant{{Email: "alice@example.com"}})

	clone := s.CloneAs("standup-reminder", domain.KindReminder)

	assert.Equal(t, "standup-reminder", clone.ID())
	assert.Equal(t, domain.KindReminder, clone.Kind())
	assert.Equal(t, "standup", clone.Referencing())
	assert.Equal(t, s.Template().Title, clone.Template().Title)

	clone.SetParticipants(nil)
	assert.Len(t, s.Participants(), 1, "clone must not share the template")
}

func TestSeries_ApplyContent(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 0)

	stale := standupRaw(0)
	stale.Title = "Old title"
	assert.False(t, s.ApplyContent(cal, stale))
	assert.Equal(t, "Standup", s.Title())

	fresh := standupRaw(0)
	fresh.Title = "Daily sync"
	fresh.LastModified = fresh.LastModified.Add(time.Hour)
	assert.True(t, s.ApplyContent(cal, fresh))
	assert.Equal(t, "Daily sync", s.Title())
	assert.Equal(t, fresh.LastModified, s.LastModified())

	assert.False(t, s.ApplyContent(cal, fresh), "same timestamp is not newer")
}

func TestSeries_SnapshotRoundTrip(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 3)
	s.Recurs(cal, day(2026, 3, 2))

	restored := domain.RehydrateSeries(s.Snapshot())

	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	assert.Equal(t, s.FuzzyHash(), restored.FuzzyHash())
}

func TestSeries_Materialize(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 0)

	occ := s.Template().Materialize(cal, domain.KindEvent, s.OccurrenceID(cal, day(2026, 3, 9)), s.ID(), day(2026, 3, 9))

	assert.Equal(t, "standup-2026.3.9.9:0", occ.ID())
	assert.Equal(t, "standup", occ.SeriesID())
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), occ.Start())
	assert.Equal(t, time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC), occ.End())
	assert.True(t, occ.IsRecurring())
	assert.False(t, occ.IsDetachedFormOf(cal, s))
}

func TestOccurrence_IsDetachedFormOf(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 0)
	materialize := func() *domain.Occurrence {
		return s.Template().Materialize(cal, domain.KindEvent, s.OccurrenceID(cal, day(2026, 3, 9)), s.ID(), day(2026, 3, 9))
	}

	t.Run("retitled", func(t *testing.T) {
		snap := materialize().Snapshot()
		snap.Title = "Standup (moved to room 4)"
		assert.True(t, domain.RehydrateOccurrence(snap).IsDetachedFormOf(cal, s))
	})

	t.Run("moved off the rule", func(t *testing.T) {
		snap := materialize().Snapshot()
		snap.Start = snap.Start.Add(time.Hour)
		assert.True(t, domain.RehydrateOccurrence(snap).IsDetachedFormOf(cal, s))
	})

	t.Run("different status", func(t *testing.T) {
		occ := materialize()
		occ.Archive()
		assert.True(t, occ.IsDetachedFormOf(cal, s))
	})

	t.Run("outside the active range still matches the rule", func(t *testing.T) {
		snap := materialize().Snapshot()
		snap.Start = time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC)
		assert.False(t, domain.RehydrateOccurrence(snap).IsDetachedFormOf(cal, s))
	})
}

func TestRawItem_IsDetachedFormOf(t *testing.T) {
	cal := calmath.UTC()
	s := newStandup(t, 0)

	sighting := standupRaw(0)
	sighting.Recurrence = nil
	sighting.Start = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	sighting.End = sighting.Start.Add(15 * time.Minute)
	assert.False(t, sighting.IsDetachedFormOf(cal, s))

	flagged := sighting
	flagged.Detached = true
	assert.True(t, flagged.IsDetachedFormOf(cal, s))

	cancelled := sighting
	cancelled.Cancelled = true
	assert.True(t, cancelled.IsDetachedFormOf(cal, s))
}

func TestOccurrence_ApplyContent(t *testing.T) {
	raw := rawEvent("lunch", "Lunch", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	raw.LastModified = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	imported, err := domain.NewOccurrenceFromRaw("lunch", "", raw)
	require.NoError(t, err)

	localEdit := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := imported.Snapshot()
	snap.Title = "Lunch with Alice"
	snap.LastModified = localEdit
	occ := domain.RehydrateOccurrence(snap)

	assert.False(t, occ.ApplyContent(raw))
	assert.Equal(t, "Lunch with Alice", occ.Title())

	newer := raw
	newer.Title = "Team lunch"
	newer.LastModified = localEdit.Add(time.Minute)
	assert.True(t, occ.ApplyContent(newer))
	assert.Equal(t, "Team lunch", occ.Title())
}

func TestOccurrence_Rekey(t *testing.T) {
	raw := rawEvent("standup", "Standup", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	occ, err := domain.NewOccurrenceFromRaw("standup", "", raw)
	require.NoError(t, err)

	rekeyed := occ.Rekey("standup-2026.3.2.9:0", "standup")

	assert.Equal(t, "standup-2026.3.2.9:0", rekeyed.ID())
	assert.Equal(t, "standup", rekeyed.SeriesID())
	assert.True(t, rekeyed.WasDetached())
	assert.Equal(t, "standup", occ.ID())
	assert.False(t, occ.WasDetached())
}

func TestOccurrence_Link(t *testing.T) {
	raw := rawEvent("lunch", "Lunch", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	occ, err := domain.NewOccurrenceFromRaw("lunch", "", raw)
	require.NoError(t, err)

	assert.False(t, occ.Link(domain.Link{CalendarID: "work", ExternalID: "lunch"}))
	assert.True(t, occ.Link(domain.Link{CalendarID: "personal", ExternalID: "lunch"}))
	assert.False(t, occ.Link(domain.Link{}))
	assert.Len(t, occ.Links(), 2)
}

func TestRawItem_Validate(t *testing.T) {
	valid := rawEvent("a", "A", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	assert.NoError(t, valid.Validate())

	noStart := valid
	noStart.Start = time.Time{}
	assert.ErrorIs(t, noStart.Validate(), domain.ErrInvalidRawItem)

	backwards := valid
	backwards.End = valid.Start.Add(-time.Hour)
	assert.ErrorIs(t, backwards.Validate(), domain.ErrInvalidRawItem)

	noID := valid
	noID.ExternalID, noID.CleanID = "", ""
	assert.ErrorIs(t, noID.Validate(), domain.ErrInvalidRawItem)
}

func TestDeriveStatus(t *testing.T) {
	status, engagement := domain.DeriveStatus(nil)
	assert.Equal(t, domain.StatusActive, status)
	assert.Equal(t, domain.EngagementNone, engagement)

	status, engagement = domain.DeriveStatus([]domain.Participant{
		{Email: "boss@example.com", Status: domain.ParticipantDeclined},
		{Email: "me@example.com", Status: domain.ParticipantTentative, IsCurrentUser: true},
	})
	assert.Equal(t, domain.StatusActive, status)
	assert.Equal(t, domain.EngagementTentative, engagement)
}
