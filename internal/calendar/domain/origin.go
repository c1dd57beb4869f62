package domain

import "fmt"

// Origin is the provenance category of a series or occurrence.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginPersonal
	OriginSubscription
	OriginShare
	OriginInvite
)

// String returns a readable name for logs.
func (o Origin) String() string {
	switch o {
	case OriginPersonal:
		return "personal"
	case OriginSubscription:
		return "subscription"
	case OriginShare:
		return "share"
	case OriginInvite:
		return "invite"
	default:
		return "unknown"
	}
}

// Winner decides which origin a record keeps when the incumbent o meets a
// challenger describing the same logical item. An invite always wins;
// among the remaining categories the incumbent is kept.
func (o Origin) Winner(challenger Origin) Origin {
	if o == OriginInvite || challenger == OriginInvite {
		return OriginInvite
	}
	return o
}

// ParseOrigin parses an origin name as written by String. The empty string
// parses as OriginUnknown.
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "", "unknown":
		return OriginUnknown, nil
	case "personal":
		return OriginPersonal, nil
	case "subscription":
		return OriginSubscription, nil
	case "share":
		return OriginShare, nil
	case "invite":
		return OriginInvite, nil
	default:
		return OriginUnknown, fmt.Errorf("unknown origin %q", s)
	}
}
