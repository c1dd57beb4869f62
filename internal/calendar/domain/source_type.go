package domain

// SourceType identifies the kind of external calendar a source reads from.
type SourceType string

const (
	// SourceGoogle is Google Calendar (OAuth2 + Calendar API v3).
	SourceGoogle SourceType = "google"
	// SourceApple is iCloud Calendar (CalDAV with app-specific password).
	SourceApple SourceType = "apple"
	// SourceCalDAV is generic CalDAV (Fastmail, Nextcloud, self-hosted).
	SourceCalDAV SourceType = "caldav"
	// SourceICS is a read-only iCalendar subscription feed.
	SourceICS SourceType = "ics"
)

// String returns the string representation of the source type.
func (t SourceType) String() string {
	return string(t)
}

// IsValid returns true if the source type is recognized.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceGoogle, SourceApple, SourceCalDAV, SourceICS:
		return true
	default:
		return false
	}
}

// RequiresOAuth returns true if the source authenticates with OAuth2.
func (t SourceType) RequiresOAuth() bool {
	return t == SourceGoogle
}

// RequiresCalDAV returns true if the source speaks CalDAV.
func (t SourceType) RequiresCalDAV() bool {
	switch t {
	case SourceApple, SourceCalDAV:
		return true
	default:
		return false
	}
}

// DefaultOrigin is the origin assigned to items whose provenance the
// source does not report.
func (t SourceType) DefaultOrigin() Origin {
	if t == SourceICS {
		return OriginSubscription
	}
	return OriginPersonal
}

// DisplayName returns a human-readable name for the source type.
func (t SourceType) DisplayName() string {
	switch t {
	case SourceGoogle:
		return "Google Calendar"
	case SourceApple:
		return "Apple Calendar"
	case SourceCalDAV:
		return "CalDAV"
	case SourceICS:
		return "iCalendar subscription"
	default:
		return string(t)
	}
}

// AllSourceTypes returns all supported source types.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceGoogle,
		SourceApple,
		SourceCalDAV,
		SourceICS,
	}
}
