package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateOccurrenceID(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			domain.GenerateOccurrenceID("standup", start),
			domain.GenerateOccurrenceID("standup", start))
	})

	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "standup-2026.3.2.9:30", domain.GenerateOccurrenceID("standup", start))
	})

	t.Run("minute changes the id", func(t *testing.T) {
		assert.NotEqual(t,
			domain.GenerateOccurrenceID("standup", start),
			domain.GenerateOccurrenceID("standup", start.Add(time.Minute)))
	})

	t.Run("independent of display zone", func(t *testing.T) {
		berlin, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			t.Skip("tzdata not available")
		}
		assert.Equal(t,
			domain.GenerateOccurrenceID("standup", start),
			domain.GenerateOccurrenceID("standup", start.In(berlin)))
	})
}
