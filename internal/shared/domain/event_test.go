package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	before := time.Now().UTC()

	event := domain.NewBaseEvent("standup-2026.3.2.9:0", "occurrence", "occurrence.imported")

	after := time.Now().UTC()

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, "standup-2026.3.2.9:0", event.AggregateID())
	assert.Equal(t, "occurrence", event.AggregateType())
	assert.Equal(t, "occurrence.imported", event.RoutingKey())
	assert.False(t, event.OccurredAt().Before(before))
	assert.False(t, event.OccurredAt().After(after))
}

func TestBaseEvent_WithMetadata(t *testing.T) {
	correlationID := uuid.New()
	causationID := uuid.New()

	event := domain.NewBaseEvent("standup", "series", "series.created")
	event.SetMetadata(domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   causationID,
		Source:        "work-caldav",
	})

	metadata := event.Metadata()
	assert.Equal(t, correlationID, metadata.CorrelationID)
	assert.Equal(t, causationID, metadata.CausationID)
	assert.Equal(t, "work-caldav", metadata.Source)
}

func TestBaseEvent_UniqueIDs(t *testing.T) {
	a := domain.NewBaseEvent("standup", "series", "series.created")
	b := domain.NewBaseEvent("standup", "series", "series.created")

	assert.NotEqual(t, a.EventID(), b.EventID())
}
