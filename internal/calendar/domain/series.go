package domain

import (
	"slices"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// Series is a recurring template plus its rule and active range. It owns
// its Template and Recurrence; occurrences refer to it by id only.
type Series struct {
	id                string
	title             string
	creator           string
	template          Template
	recurrence        Recurrence
	start             time.Time
	end               time.Time
	kind              ItemKind
	origin            Origin
	status            ObjectStatus
	engagement        Engagement
	lastRecurrenceDay time.Time
	referencing       string
	lastModified      time.Time
}

// SeriesParams holds the inputs for a new series.
type SeriesParams struct {
	ID           string
	Creator      string
	Template     Template
	Recurrence   Recurrence
	Start        time.Time
	End          time.Time
	Kind         ItemKind
	Origin       Origin
	LastModified time.Time
}

// NewSeries creates an active series. Status and engagement are derived from
// the template's participants.
func NewSeries(p SeriesParams) (*Series, error) {
	if p.ID == "" {
		return nil, ErrEmptySeriesID
	}
	if err := p.Recurrence.Validate(); err != nil {
		return nil, err
	}
	status, engagement := DeriveStatus(p.Template.Participants)
	return &Series{
		id:           p.ID,
		title:        p.Template.Title,
		creator:      p.Creator,
		template:     p.Template.Clone(),
		recurrence:   p.Recurrence.Clone(),
		start:        p.Start,
		end:          p.End,
		kind:         p.Kind,
		origin:       p.Origin,
		status:       status,
		engagement:   engagement,
		lastModified: p.LastModified,
	}, nil
}

// NewSeriesFromRaw builds a series from a recurring raw item. The rule's end
// date, if any, becomes the end of the active range, inclusive of that day.
func NewSeriesFromRaw(cal calmath.Calendar, raw RawItem) (*Series, error) {
	if raw.Recurrence == nil {
		return nil, ErrInvalidRawItem
	}
	var end time.Time
	if !raw.RecurrenceEnd.IsZero() {
		end = cal.DayAfter(raw.RecurrenceEnd)
	}
	s, err := NewSeries(SeriesParams{
		ID:           raw.ID(),
		Template:     TemplateFromRaw(cal, raw),
		Recurrence:   *raw.Recurrence,
		Start:        raw.Start,
		End:          end,
		Kind:         raw.Kind,
		Origin:       raw.Origin,
		LastModified: raw.LastModified,
	})
	if err != nil {
		return nil, err
	}
	s.status, s.engagement = raw.Status()
	return s, nil
}

// SeriesSnapshot is the persisted form of a series.
type SeriesSnapshot struct {
	ID                string
	Title             string
	Creator           string
	Template          Template
	Recurrence        Recurrence
	Start             time.Time
	End               time.Time
	Kind              ItemKind
	Origin            Origin
	Status            ObjectStatus
	Engagement        Engagement
	LastRecurrenceDay time.Time
	Referencing       string
	LastModified      time.Time
}

// RehydrateSeries recreates a series from persisted state.
func RehydrateSeries(s SeriesSnapshot) *Series {
	return &Series{
		id:                s.ID,
		title:             s.Title,
		creator:           s.Creator,
		template:          s.Template,
		recurrence:        s.Recurrence,
		start:             s.Start,
		end:               s.End,
		kind:              s.Kind,
		origin:            s.Origin,
		status:            s.Status,
		engagement:        s.Engagement,
		lastRecurrenceDay: s.LastRecurrenceDay,
		referencing:       s.Referencing,
		lastModified:      s.LastModified,
	}
}

// Snapshot returns the persisted form of the series.
func (s *Series) Snapshot() SeriesSnapshot {
	return SeriesSnapshot{
		ID:                s.id,
		Title:             s.title,
		Creator:           s.creator,
		Template:          s.template.Clone(),
		Recurrence:        s.recurrence.Clone(),
		Start:             s.start,
		End:               s.end,
		Kind:              s.kind,
		Origin:            s.origin,
		Status:            s.status,
		Engagement:        s.engagement,
		LastRecurrenceDay: s.lastRecurrenceDay,
		Referencing:       s.referencing,
		LastModified:      s.lastModified,
	}
}

// Getters
func (s *Series) ID() string                  { return s.id }
func (s *Series) Title() string               { return s.title }
func (s *Series) Creator() string             { return s.creator }
func (s *Series) Template() Template          { return s.template }
func (s *Series) Recurrence() Recurrence      { return s.recurrence }
func (s *Series) Start() time.Time            { return s.start }
func (s *Series) End() time.Time              { return s.end }
func (s *Series) Kind() ItemKind              { return s.kind }
func (s *Series) Origin() Origin              { return s.origin }
func (s *Series) Status() ObjectStatus        { return s.status }
func (s *Series) Engagement() Engagement      { return s.engagement }
func (s *Series) Referencing() string         { return s.referencing }
func (s *Series) LastModified() time.Time     { return s.lastModified }
func (s *Series) Participants() []Participant { return s.template.Participants }

// CachedLastRecurrenceDay returns the cached final day of a count-bounded
// rule, or the zero time when it has not been computed.
func (s *Series) CachedLastRecurrenceDay() time.Time { return s.lastRecurrenceDay }

// Rule returns the evaluator for the series, computing and caching the
// last recurrence day of count-bounded rules on first use.
func (s *Series) Rule(cal calmath.Calendar) (Rule, error) {
	rule := NewRule(cal, s.recurrence, s.start, s.end)
	if !s.recurrence.IsCountBounded() {
		return rule, nil
	}
	if s.lastRecurrenceDay.IsZero() {
		last, err := rule.LastRecurrenceDay()
		if err != nil {
			return Rule{}, err
		}
		s.lastRecurrenceDay = last
	}
	return rule.WithLastRecurrenceDay(s.lastRecurrenceDay), nil
}

// Recurs reports whether the series has an occurrence on the day of day.
func (s *Series) Recurs(cal calmath.Calendar, day time.Time) bool {
	rule, err := s.Rule(cal)
	if err != nil {
		return false
	}
	return rule.Recurs(day)
}

// RecursIgnoringRange is Recurs without the active range and count bounds.
func (s *Series) RecursIgnoringRange(cal calmath.Calendar, day time.Time) bool {
	return NewRule(cal, s.recurrence, s.start, s.end).RecursIgnoringRange(day)
}

// RecursAt reports whether an occurrence starts exactly at t.
func (s *Series) RecursAt(cal calmath.Calendar, t time.Time) bool {
	return s.Recurs(cal, t) && s.template.StartOn(cal, t).Equal(t)
}

// RecursAtIgnoringRange is RecursAt without the active range and count bounds.
func (s *Series) RecursAtIgnoringRange(cal calmath.Calendar, t time.Time) bool {
	return s.RecursIgnoringRange(cal, t) && s.template.StartOn(cal, t).Equal(t)
}

// OccurrenceStart returns the start of the occurrence on the day of day.
func (s *Series) OccurrenceStart(cal calmath.Calendar, day time.Time) time.Time {
	return s.template.StartOn(cal, day)
}

// OccurrenceID returns the id of the occurrence on the day of day.
func (s *Series) OccurrenceID(cal calmath.Calendar, day time.Time) string {
	return GenerateOccurrenceID(s.id, s.OccurrenceStart(cal, day))
}

// OccurrenceIn locates the first occurrence within [from, to). Timed
// occurrences must start in the range; all-day occurrences must overlap it.
func (s *Series) OccurrenceIn(cal calmath.Calendar, from, to time.Time) (string, time.Time, bool) {
	rule, err := s.Rule(cal)
	if err != nil {
		return "", time.Time{}, false
	}
	for d := cal.StartOfDay(from); d.Before(to); d = cal.AddDays(d, 1) {
		if !rule.Recurs(d) {
			continue
		}
		start := s.OccurrenceStart(cal, d)
		inRange := !start.Before(from) && start.Before(to)
		if s.template.AllDay {
			inRange = start.Before(to) && cal.DayAfter(start).After(from)
		}
		if inRange {
			return GenerateOccurrenceID(s.id, start), start, true
		}
	}
	return "", time.Time{}, false
}

// FuzzyHash returns the content hash used to spot duplicate series.
func (s *Series) FuzzyHash() int64 {
	h := newFuzzyHasher()
	h.number(int64(s.kind))
	h.text(s.template.Title)
	h.instant(s.start)
	h.number(int64(s.template.DurationMinutes))
	h.number(int64(s.recurrence.Frequency))
	h.number(int64(s.recurrence.interval()))
	h.participants(s.template.Participants)
	return h.sum()
}

// SetStart moves the start of the active range and drops the cached last
// recurrence day.
func (s *Series) SetStart(t time.Time) {
	if !t.Equal(s.start) {
		s.lastRecurrenceDay = time.Time{}
	}
	s.start = t
}

// SetParticipants replaces the template's participants.
func (s *Series) SetParticipants(ps []Participant) {
	s.template.Participants = slices.Clone(ps)
}

func (s *Series) SetStatus(status ObjectStatus)       { s.status = status }
func (s *Series) SetEngagement(engagement Engagement) { s.engagement = engagement }

// SetOrigin updates the series origin and the template's origin with it.
func (s *Series) SetOrigin(o Origin) {
	s.origin = o
	s.template.Origin = o
}

// Link records the external source entry. It reports whether the link was new.
func (s *Series) Link(link Link) bool {
	var added bool
	s.template.Links, added = addLink(s.template.Links, link)
	return added
}

// Archive withdraws the series without deleting it.
func (s *Series) Archive() {
	s.status = StatusArchived
}

// ApplyContent updates the series from a newer observation of its source.
// It reports whether anything changed.
func (s *Series) ApplyContent(cal calmath.Calendar, raw RawItem) bool {
	if !raw.LastModified.After(s.lastModified) {
		return false
	}
	next := TemplateFromRaw(cal, raw)
	next.Participants = s.template.Participants
	next.Links = s.template.Links
	next.Origin = s.template.Origin
	changed := s.template.Title != next.Title ||
		s.template.Detail != next.Detail ||
		s.template.Location != next.Location ||
		s.template.StartHour != next.StartHour ||
		s.template.StartMinute != next.StartMinute ||
		s.template.DurationMinutes != next.DurationMinutes ||
		s.template.AllDay != next.AllDay
	if changed {
		s.template = next
		s.title = next.Title
	}
	if raw.Recurrence != nil && !raw.Recurrence.Equal(s.recurrence) {
		s.recurrence = raw.Recurrence.Clone()
		s.lastRecurrenceDay = time.Time{}
		changed = true
	}
	if !raw.Start.Equal(s.start) && raw.Recurrence != nil {
		s.SetStart(raw.Start)
		changed = true
	}
	s.lastModified = raw.LastModified
	return changed
}

// CloneAs returns a copy of the series under a new id and kind, with a
// cloned template, referencing the original.
func (s *Series) CloneAs(id string, kind ItemKind) *Series {
	snap := s.Snapshot()
	snap.ID = id
	snap.Kind = kind
	snap.Referencing = s.id
	snap.LastRecurrenceDay = time.Time{}
	return RehydrateSeries(snap)
}
