package domain

import (
	"slices"
	"time"
)

// ParticipantRole is the part an attendee plays in an item.
type ParticipantRole int

const (
	RoleRequired ParticipantRole = iota
	RoleOptional
	RoleChair
	RoleNonParticipant
)

func (r ParticipantRole) String() string {
	switch r {
	case RoleOptional:
		return "optional"
	case RoleChair:
		return "chair"
	case RoleNonParticipant:
		return "non_participant"
	default:
		return "required"
	}
}

// ParticipantStatus is an attendee's response.
type ParticipantStatus int

const (
	ParticipantUnknown ParticipantStatus = iota
	ParticipantPending
	ParticipantAccepted
	ParticipantDeclined
	ParticipantTentative
	ParticipantDelegated
)

func (s ParticipantStatus) String() string {
	switch s {
	case ParticipantPending:
		return "pending"
	case ParticipantAccepted:
		return "accepted"
	case ParticipantDeclined:
		return "declined"
	case ParticipantTentative:
		return "tentative"
	case ParticipantDelegated:
		return "delegated"
	default:
		return "unknown"
	}
}

// Participant is an attendee of an event or series.
type Participant struct {
	Name          string
	Email         string
	Role          ParticipantRole
	Status        ParticipantStatus
	IsCurrentUser bool
}

// AlarmAction is how an alarm notifies.
type AlarmAction int

const (
	AlarmDisplay AlarmAction = iota
	AlarmAudio
	AlarmEmail
)

func (a AlarmAction) String() string {
	switch a {
	case AlarmAudio:
		return "audio"
	case AlarmEmail:
		return "email"
	default:
		return "display"
	}
}

// Alarm fires either at an offset relative to the item's start or at an
// absolute instant when At is set.
type Alarm struct {
	Action AlarmAction
	Offset time.Duration
	At     time.Time
}

// Link ties a record to the external calendar entry it was imported from.
type Link struct {
	CalendarID string
	ExternalID string
}

// DeriveStatus maps the current user's participation to a status and
// engagement. A declined invitation archives the item.
func DeriveStatus(participants []Participant) (ObjectStatus, Engagement) {
	for _, p := range participants {
		if !p.IsCurrentUser {
			continue
		}
		switch p.Status {
		case ParticipantDeclined:
			return StatusArchived, EngagementDeclined
		case ParticipantAccepted:
			return StatusActive, EngagementAccepted
		case ParticipantTentative:
			return StatusActive, EngagementTentative
		default:
			return StatusActive, EngagementNone
		}
	}
	return StatusActive, EngagementNone
}

func addLink(links []Link, link Link) ([]Link, bool) {
	if link.CalendarID == "" && link.ExternalID == "" {
		return links, false
	}
	if slices.Contains(links, link) {
		return links, false
	}
	return append(links, link), true
}
