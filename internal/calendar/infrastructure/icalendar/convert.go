// Package icalendar converts iCalendar components into raw calendar items.
package icalendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/rrule"
)

var (
	// ErrMissingUID is returned for components without a UID.
	ErrMissingUID = errors.New("component has no UID")
	// ErrMissingStart is returned for components without a usable start.
	ErrMissingStart = errors.New("component has no start")
	// ErrUnsupportedComponent is returned for components other than
	// VEVENT and VTODO.
	ErrUnsupportedComponent = errors.New("unsupported component")
)

// Options carries the source context a component is read in.
type Options struct {
	// CalendarID identifies the calendar the component was read from.
	CalendarID string
	// Origin is stamped on the item unless the component is an invitation.
	Origin domain.Origin
	// Self is the current user's address, used to spot their attendee entry.
	Self string
	// Location resolves floating times. Nil means UTC.
	Location *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// InstanceID returns the external id of an individually modified instance.
func InstanceID(uid string, recurrenceID time.Time) string {
	return uid + "_" + recurrenceID.UTC().Format("20060102T150405Z")
}

// Items converts every VEVENT and VTODO of a calendar. Components that cannot
// be converted are reported through skip and left out.
func Items(cal *ical.Calendar, opts Options, skip func(uid string, err error)) []domain.RawItem {
	if cal == nil {
		return nil
	}
	items := make([]domain.RawItem, 0, len(cal.Children))
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent && child.Name != ical.CompToDo {
			continue
		}
		item, err := ToRawItem(child, opts)
		if err != nil {
			if skip != nil {
				uid, _ := child.Props.Text(ical.PropUID)
				skip(uid, err)
			}
			continue
		}
		items = append(items, item)
	}
	return items
}

// ToRawItem converts a VEVENT or VTODO component.
func ToRawItem(comp *ical.Component, opts Options) (domain.RawItem, error) {
	var item domain.RawItem
	switch comp.Name {
	case ical.CompEvent:
		item.Kind = domain.KindEvent
	case ical.CompToDo:
		item.Kind = domain.KindReminder
	default:
		return item, fmt.Errorf("%w: %s", ErrUnsupportedComponent, comp.Name)
	}

	uid, _ := comp.Props.Text(ical.PropUID)
	if uid == "" {
		return item, ErrMissingUID
	}
	item.ExternalID = uid
	item.CleanID = uid
	item.CalendarID = opts.CalendarID
	item.Title, _ = comp.Props.Text(ical.PropSummary)
	item.Detail, _ = comp.Props.Text(ical.PropDescription)
	item.Location, _ = comp.Props.Text(ical.PropLocation)

	loc := opts.location()
	if err := readTimes(comp, loc, &item); err != nil {
		return item, fmt.Errorf("%s: %w", uid, err)
	}

	if prop := comp.Props.Get(ical.PropRecurrenceID); prop != nil {
		original, err := prop.DateTime(loc)
		if err != nil {
			return item, fmt.Errorf("%s: recurrence id: %w", uid, err)
		}
		item.Detached = true
		item.OriginalStart = original
		item.ExternalID = InstanceID(uid, original)
	} else if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		if err := rrule.Apply(&item, prop.Value); err != nil {
			return item, fmt.Errorf("%s: %w", uid, err)
		}
	}

	if status, _ := comp.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
		item.Cancelled = true
	}
	item.LastModified = lastModified(comp)
	item.Participants = participants(comp, opts.Self)
	item.Alarms = alarms(comp, item.Start, item.End)
	item.Origin = OriginFor(opts.Origin, item.Participants)

	return item, nil
}

func readTimes(comp *ical.Component, loc *time.Location, item *domain.RawItem) error {
	if comp.Name == ical.CompEvent {
		event := ical.Event{Component: comp}
		start, err := event.DateTimeStart(loc)
		if err != nil {
			return err
		}
		if start.IsZero() {
			return ErrMissingStart
		}
		end, err := event.DateTimeEnd(loc)
		if err != nil {
			return err
		}
		item.Start, item.End = start, end
		item.AllDay = isDate(comp.Props.Get(ical.PropDateTimeStart))
		return nil
	}

	// A task is placed at its start, or at its due time when it has none.
	var due time.Time
	if prop := comp.Props.Get(ical.PropDue); prop != nil {
		t, err := prop.DateTime(loc)
		if err != nil {
			return err
		}
		due = t
	}
	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		start, err := prop.DateTime(loc)
		if err != nil {
			return err
		}
		item.Start = start
		item.AllDay = isDate(prop)
	} else if !due.IsZero() {
		item.Start = due
		item.AllDay = isDate(comp.Props.Get(ical.PropDue))
	}
	if item.Start.IsZero() {
		return ErrMissingStart
	}
	if due.After(item.Start) {
		item.End = due
	}
	return nil
}

func isDate(prop *ical.Prop) bool {
	return prop != nil && prop.ValueType() == ical.ValueDate
}

func lastModified(comp *ical.Component) time.Time {
	for _, name := range []string{ical.PropLastModified, ical.PropDateTimeStamp} {
		if prop := comp.Props.Get(name); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func participants(comp *ical.Component, self string) []domain.Participant {
	var out []domain.Participant
	organizer := ""
	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		organizer = Address(prop.Value)
	}
	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		p := Participant(prop.Params.Get("CN"), prop.Value, prop.Params.Get("ROLE"), prop.Params.Get("PARTSTAT"), self)
		if organizer != "" && strings.EqualFold(p.Email, organizer) {
			p.Role = domain.RoleChair
		}
		out = append(out, p)
	}
	if organizer != "" && !containsAddress(out, organizer) {
		prop := comp.Props.Get(ical.PropOrganizer)
		p := Participant(prop.Params.Get("CN"), prop.Value, "CHAIR", "ACCEPTED", self)
		out = append(out, p)
	}
	return out
}

func containsAddress(ps []domain.Participant, email string) bool {
	for _, p := range ps {
		if strings.EqualFold(p.Email, email) {
			return true
		}
	}
	return false
}

// OriginFor marks items organized by someone else as invitations when the
// current user is among the attendees.
func OriginFor(base domain.Origin, ps []domain.Participant) domain.Origin {
	var self, chairIsOther bool
	for _, p := range ps {
		if p.IsCurrentUser {
			self = true
			if p.Role == domain.RoleChair {
				return base
			}
		} else if p.Role == domain.RoleChair {
			chairIsOther = true
		}
	}
	if self && chairIsOther {
		return domain.OriginInvite
	}
	return base
}

func alarms(comp *ical.Component, start, end time.Time) []domain.Alarm {
	var out []domain.Alarm
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil {
			continue
		}
		action, _ := child.Props.Text(ical.PropAction)
		alarm := domain.Alarm{Action: AlarmAction(action)}
		if trigger.ValueType() == ical.ValueDateTime {
			at, err := trigger.DateTime(time.UTC)
			if err != nil {
				continue
			}
			alarm.At = at
		} else {
			offset, err := trigger.Duration()
			if err != nil {
				continue
			}
			if strings.EqualFold(trigger.Params.Get("RELATED"), "END") && end.After(start) {
				offset += end.Sub(start)
			}
			alarm.Offset = offset
		}
		out = append(out, alarm)
	}
	return out
}
