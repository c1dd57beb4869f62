package domain

import (
	"slices"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// Occurrence is a materialized event or reminder. Recurring occurrences
// refer to their series by id; standalone items have no series id. A
// detached instance keeps the unmodified start its source reported, so it
// can be filed under the right occurrence id once its series is known.
type Occurrence struct {
	id            string
	kind          ItemKind
	seriesID      string
	title         string
	detail        string
	location      string
	start         time.Time
	end           time.Time
	allDay        bool
	origin        Origin
	status        ObjectStatus
	engagement    Engagement
	wasDetached   bool
	originalStart time.Time
	participants  []Participant
	alarms        []Alarm
	links         []Link
	lastModified  time.Time
}

// NewOccurrenceFromRaw creates an occurrence with the given id from a raw item.
func NewOccurrenceFromRaw(id, seriesID string, raw RawItem) (*Occurrence, error) {
	if id == "" {
		return nil, ErrEmptyOccurrenceID
	}
	status, engagement := raw.Status()
	o := &Occurrence{
		id:            id,
		kind:          raw.Kind,
		seriesID:      seriesID,
		title:         raw.Title,
		detail:        raw.Detail,
		location:      raw.Location,
		start:         raw.Start,
		end:           raw.EffectiveEnd(),
		allDay:        raw.AllDay,
		origin:        raw.Origin,
		status:        status,
		engagement:    engagement,
		originalStart: raw.OriginalStart,
		participants:  slices.Clone(raw.Participants),
		alarms:        slices.Clone(raw.Alarms),
		lastModified:  raw.LastModified,
	}
	o.links, _ = addLink(nil, raw.Link())
	return o, nil
}

// OccurrenceSnapshot is the persisted form of an occurrence.
type OccurrenceSnapshot struct {
	ID            string
	Kind          ItemKind
	SeriesID      string
	Title         string
	Detail        string
	Location      string
	Start         time.Time
	End           time.Time
	AllDay        bool
	Origin        Origin
	Status        ObjectStatus
	Engagement    Engagement
	WasDetached   bool
	OriginalStart time.Time
	Participants  []Participant
	Alarms        []Alarm
	Links         []Link
	LastModified  time.Time
}

// RehydrateOccurrence recreates an occurrence from persisted state.
func RehydrateOccurrence(s OccurrenceSnapshot) *Occurrence {
	return &Occurrence{
		id:            s.ID,
		kind:          s.Kind,
		seriesID:      s.SeriesID,
		title:         s.Title,
		detail:        s.Detail,
		location:      s.Location,
		start:         s.Start,
		end:           s.End,
		allDay:        s.AllDay,
		origin:        s.Origin,
		status:        s.Status,
		engagement:    s.Engagement,
		wasDetached:   s.WasDetached,
		originalStart: s.OriginalStart,
		participants:  s.Participants,
		alarms:        s.Alarms,
		links:         s.Links,
		lastModified:  s.LastModified,
	}
}

// Snapshot returns the persisted form of the occurrence.
func (o *Occurrence) Snapshot() OccurrenceSnapshot {
	return OccurrenceSnapshot{
		ID:            o.id,
		Kind:          o.kind,
		SeriesID:      o.seriesID,
		Title:         o.title,
		Detail:        o.detail,
		Location:      o.location,
		Start:         o.start,
		End:           o.end,
		AllDay:        o.allDay,
		Origin:        o.origin,
		Status:        o.status,
		Engagement:    o.engagement,
		WasDetached:   o.wasDetached,
		OriginalStart: o.originalStart,
		Participants:  slices.Clone(o.participants),
		Alarms:        slices.Clone(o.alarms),
		Links:         slices.Clone(o.links),
		LastModified:  o.lastModified,
	}
}

// Getters
func (o *Occurrence) ID() string                  { return o.id }
func (o *Occurrence) Kind() ItemKind              { return o.kind }
func (o *Occurrence) SeriesID() string            { return o.seriesID }
func (o *Occurrence) Title() string               { return o.title }
func (o *Occurrence) Detail() string              { return o.detail }
func (o *Occurrence) Location() string            { return o.location }
func (o *Occurrence) Start() time.Time            { return o.start }
func (o *Occurrence) End() time.Time              { return o.end }
func (o *Occurrence) AllDay() bool                { return o.allDay }
func (o *Occurrence) Origin() Origin              { return o.origin }
func (o *Occurrence) Status() ObjectStatus        { return o.status }
func (o *Occurrence) Engagement() Engagement      { return o.engagement }
func (o *Occurrence) WasDetached() bool           { return o.wasDetached }
func (o *Occurrence) OriginalStart() time.Time    { return o.originalStart }
func (o *Occurrence) Participants() []Participant { return o.participants }
func (o *Occurrence) Alarms() []Alarm             { return o.alarms }
func (o *Occurrence) Links() []Link               { return o.links }
func (o *Occurrence) LastModified() time.Time     { return o.lastModified }

// IsRecurring reports whether the occurrence belongs to a series.
func (o *Occurrence) IsRecurring() bool {
	return o.seriesID != ""
}

// FuzzyHash returns the content hash used to spot duplicates.
func (o *Occurrence) FuzzyHash() int64 {
	return itemFuzzyHash(o.kind, o.title, o.start, o.end, o.participants)
}

// InRange reports whether the occurrence starts within [from, to), or for
// all-day occurrences whether it overlaps the range.
func (o *Occurrence) InRange(from, to time.Time) bool {
	if o.allDay {
		return o.start.Before(to) && o.end.After(from)
	}
	return !o.start.Before(from) && o.start.Before(to)
}

// IsDetachedFormOf reports whether the occurrence has diverged from its
// series: the rule no longer fires at its start, its title differs from the
// template, or its status differs from the series.
func (o *Occurrence) IsDetachedFormOf(cal calmath.Calendar, s *Series) bool {
	return divergesFrom(cal, s, o.start, o.allDay, o.title, o.status)
}

func (o *Occurrence) SetParticipants(ps []Participant) { o.participants = slices.Clone(ps) }
func (o *Occurrence) SetStatus(status ObjectStatus)    { o.status = status }
func (o *Occurrence) SetEngagement(e Engagement)       { o.engagement = e }
func (o *Occurrence) SetOrigin(origin Origin)          { o.origin = origin }

// MarkDetached flags the occurrence as diverged from its series.
func (o *Occurrence) MarkDetached() {
	o.wasDetached = true
}

// Link records the external source entry. It reports whether the link was new.
func (o *Occurrence) Link(link Link) bool {
	var added bool
	o.links, added = addLink(o.links, link)
	return added
}

// Archive withdraws the occurrence without deleting it.
func (o *Occurrence) Archive() {
	o.status = StatusArchived
}

// ApplyContent updates the occurrence from a strictly newer observation of
// its source. It reports whether the occurrence was updated.
func (o *Occurrence) ApplyContent(raw RawItem) bool {
	if !raw.LastModified.After(o.lastModified) {
		return false
	}
	o.title = raw.Title
	o.detail = raw.Detail
	o.location = raw.Location
	o.start = raw.Start
	o.end = raw.EffectiveEnd()
	o.allDay = raw.AllDay
	o.alarms = slices.Clone(raw.Alarms)
	o.lastModified = raw.LastModified
	if !raw.OriginalStart.IsZero() {
		o.originalStart = raw.OriginalStart
	}
	return true
}

// Rekey returns a copy of the occurrence under a new id, attached to
// seriesID and marked detached.
func (o *Occurrence) Rekey(id, seriesID string) *Occurrence {
	snap := o.Snapshot()
	snap.ID = id
	snap.SeriesID = seriesID
	snap.WasDetached = true
	return RehydrateOccurrence(snap)
}
