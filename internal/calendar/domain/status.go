package domain

// ObjectStatus is the lifecycle status of a series or occurrence.
type ObjectStatus int

const (
	StatusActive ObjectStatus = iota
	StatusArchived
	StatusDeleted
)

func (s ObjectStatus) String() string {
	switch s {
	case StatusArchived:
		return "archived"
	case StatusDeleted:
		return "deleted"
	default:
		return "active"
	}
}

// Engagement is the user's response to an item.
type Engagement int

const (
	EngagementNone Engagement = iota
	EngagementAccepted
	EngagementTentative
	EngagementDeclined
)

func (e Engagement) String() string {
	switch e {
	case EngagementAccepted:
		return "accepted"
	case EngagementTentative:
		return "tentative"
	case EngagementDeclined:
		return "declined"
	default:
		return "none"
	}
}

// ItemKind distinguishes events from reminders.
type ItemKind int

const (
	KindEvent ItemKind = iota
	KindReminder
)

func (k ItemKind) String() string {
	if k == KindReminder {
		return "reminder"
	}
	return "event"
}

// Modality describes where an item takes place.
type Modality int

const (
	ModalityUnspecified Modality = iota
	ModalityInPerson
	ModalityRemote
)

func (m Modality) String() string {
	switch m {
	case ModalityInPerson:
		return "in_person"
	case ModalityRemote:
		return "remote"
	default:
		return "unspecified"
	}
}
