package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// Template is the content shared by every occurrence of a series. Start and
// duration are wall-clock offsets applied on each occurrence day.
type Template struct {
	Title           string
	Detail          string
	Location        string
	Modality        Modality
	StartHour       int
	StartMinute     int
	DurationMinutes int
	AllDay          bool
	Participants    []Participant
	Alarms          []Alarm
	Links           []Link
	Origin          Origin
}

// TemplateFromRaw captures the content of a raw item, reading its wall-clock
// start in the calendar's location.
func TemplateFromRaw(cal calmath.Calendar, raw RawItem) Template {
	start := cal.In(raw.Start)
	t := Template{
		Title:           raw.Title,
		Detail:          raw.Detail,
		Location:        raw.Location,
		Modality:        modalityFor(raw.Location),
		StartHour:       start.Hour(),
		StartMinute:     start.Minute(),
		DurationMinutes: int(raw.End.Sub(raw.Start) / time.Minute),
		AllDay:          raw.AllDay,
		Participants:    slices.Clone(raw.Participants),
		Alarms:          slices.Clone(raw.Alarms),
		Origin:          raw.Origin,
	}
	if raw.AllDay {
		t.StartHour, t.StartMinute = 0, 0
	}
	if t.DurationMinutes < 0 {
		t.DurationMinutes = 0
	}
	t.Links, _ = addLink(nil, raw.Link())
	return t
}

func modalityFor(location string) Modality {
	loc := strings.ToLower(strings.TrimSpace(location))
	switch {
	case loc == "":
		return ModalityUnspecified
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		return ModalityRemote
	default:
		return ModalityInPerson
	}
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	c := t
	c.Participants = slices.Clone(t.Participants)
	c.Alarms = slices.Clone(t.Alarms)
	c.Links = slices.Clone(t.Links)
	return c
}

// StartOn returns the template's start on the day containing day.
func (t Template) StartOn(cal calmath.Calendar, day time.Time) time.Time {
	if t.AllDay {
		return cal.StartOfDay(day)
	}
	return cal.At(day, t.StartHour, t.StartMinute)
}

// Duration returns the length of each occurrence.
func (t Template) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Materialize builds the occurrence of the template on day. The result is
// not persisted.
func (t Template) Materialize(cal calmath.Calendar, kind ItemKind, id, seriesID string, day time.Time) *Occurrence {
	start := t.StartOn(cal, day)
	end := start.Add(t.Duration())
	if t.AllDay && t.DurationMinutes == 0 {
		end = cal.DayAfter(start)
	}
	status, engagement := DeriveStatus(t.Participants)
	return &Occurrence{
		id:           id,
		kind:         kind,
		seriesID:     seriesID,
		title:        t.Title,
		detail:       t.Detail,
		location:     t.Location,
		start:        start,
		end:          end,
		allDay:       t.AllDay,
		origin:       t.Origin,
		status:       status,
		engagement:   engagement,
		participants: slices.Clone(t.Participants),
		alarms:       slices.Clone(t.Alarms),
		links:        slices.Clone(t.Links),
	}
}
