package domain

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// RawItem is a calendar item as observed in an external source.
type RawItem struct {
	// ExternalID identifies the item in its source. For recurrence
	// instances it may carry an instance suffix.
	ExternalID string
	// CleanID is ExternalID with any instance suffix removed; it equals the
	// id of the series the item belongs to.
	CleanID string

	Kind     ItemKind
	Title    string
	Detail   string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Detached marks an individually modified instance of a recurring item.
	Detached bool
	// OriginalStart is the instance's unmodified start when the source
	// reports it (RECURRENCE-ID).
	OriginalStart time.Time

	Recurrence    *Recurrence
	RecurrenceEnd time.Time

	Participants []Participant
	Alarms       []Alarm
	LastModified time.Time
	CalendarID   string
	Origin       Origin
	Cancelled    bool
}

// Validate rejects items that cannot be imported.
func (r RawItem) Validate() error {
	if r.CleanID == "" && r.ExternalID == "" {
		return fmt.Errorf("%w: missing identifier", ErrInvalidRawItem)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: %s has no start", ErrInvalidRawItem, r.ExternalID)
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("%w: %s ends before it starts", ErrInvalidRawItem, r.ExternalID)
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the clean id, falling back to the external id.
func (r RawItem) ID() string {
	if r.CleanID != "" {
		return r.CleanID
	}
	return r.ExternalID
}

// Link returns the link to the item's source entry.
func (r RawItem) Link() Link {
	return Link{CalendarID: r.CalendarID, ExternalID: r.ExternalID}
}

// EffectiveEnd returns End, or the end of the start day for all-day items
// without one.
func (r RawItem) EffectiveEnd() time.Time {
	if !r.End.IsZero() {
		return r.End
	}
	if r.AllDay {
		return r.Start.Add(24 * time.Hour)
	}
	return r.Start
}

// IsMultiday reports whether the item spans more than a day.
func (r RawItem) IsMultiday() bool {
	return r.EffectiveEnd().Sub(r.Start) > 24*time.Hour
}

// Status derives the lifecycle status and engagement from the item.
func (r RawItem) Status() (ObjectStatus, Engagement) {
	status, engagement := DeriveStatus(r.Participants)
	if r.Cancelled {
		status = StatusArchived
	}
	return status, engagement
}

// FuzzyHash returns the content hash used to spot duplicates.
func (r RawItem) FuzzyHash() int64 {
	return itemFuzzyHash(r.Kind, r.Title, r.Start, r.EffectiveEnd(), r.Participants)
}

// IsDetachedFormOf reports whether the item diverges from the series it
// belongs to: flagged detached by its source, no longer on the rule at its
// start, retitled, or in a different status.
func (r RawItem) IsDetachedFormOf(cal calmath.Calendar, s *Series) bool {
	if r.Detached {
		return true
	}
	status, _ := r.Status()
	return divergesFrom(cal, s, r.Start, r.AllDay, r.Title, status)
}

func divergesFrom(cal calmath.Calendar, s *Series, start time.Time, allDay bool, title string, status ObjectStatus) bool {
	if allDay {
		if !s.RecursIgnoringRange(cal, start) {
			return true
		}
	} else if !s.RecursAtIgnoringRange(cal, start) {
		return true
	}
	return title != s.Template().Title || status != s.Status()
}
