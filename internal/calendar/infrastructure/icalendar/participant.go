package icalendar

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// Address strips the mailto scheme from a calendar user address.
func Address(value string) string {
	v := strings.TrimSpace(value)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

// Participant builds a participant from the ATTENDEE value and its CN, ROLE
// and PARTSTAT parameters.
func Participant(name, address, role, partstat, self string) domain.Participant {
	email := Address(address)
	return domain.Participant{
		Name:          name,
		Email:         email,
		Role:          Role(role),
		Status:        Status(partstat),
		IsCurrentUser: self != "" && strings.EqualFold(email, self),
	}
}

// Role maps an iCalendar ROLE parameter. Absent roles are required.
func Role(value string) domain.ParticipantRole {
	switch strings.ToUpper(value) {
	case "CHAIR":
		return domain.RoleChair
	case "OPT-PARTICIPANT":
		return domain.RoleOptional
	case "NON-PARTICIPANT":
		return domain.RoleNonParticipant
	default:
		return domain.RoleRequired
	}
}

// Status maps an iCalendar PARTSTAT parameter.
func Status(value string) domain.ParticipantStatus {
	switch strings.ToUpper(value) {
	case "NEEDS-ACTION":
		return domain.ParticipantPending
	case "ACCEPTED":
		return domain.ParticipantAccepted
	case "DECLINED":
		return domain.ParticipantDeclined
	case "TENTATIVE":
		return domain.ParticipantTentative
	case "DELEGATED":
		return domain.ParticipantDelegated
	default:
		return domain.ParticipantUnknown
	}
}

// AlarmAction maps a VALARM ACTION. Unknown actions display.
func AlarmAction(value string) domain.AlarmAction {
	switch strings.ToUpper(value) {
	case "AUDIO":
		return domain.AlarmAudio
	case "EMAIL":
		return domain.AlarmEmail
	default:
		return domain.AlarmDisplay
	}
}

// Duration parses an iCalendar duration such as -PT15M or P1DT2H.
func Duration(value string) (time.Duration, error) {
	prop := ical.NewProp(ical.PropDuration)
	prop.Value = strings.TrimSpace(value)
	return prop.Duration()
}
