package domain

import (
	"fmt"
	"time"
)

// GenerateOccurrenceID returns the id of the occurrence of a series that
// starts at start. Components are taken in UTC so the id does not depend
// on the display time zone.
func GenerateOccurrenceID(seriesID string, start time.Time) string {
	u := start.UTC()
	return fmt.Sprintf("%s-%d.%d.%d.%d:%d", seriesID, u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute())
}
