package eventbus_test

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConsumer struct {
	eventTypes []string
	events     []*eventbus.ConsumedEvent
	err        error
}

func (m *mockConsumer) EventTypes() []string {
	return m.eventTypes
}

func (m *mockConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	m.events = append(m.events, event)
	return m.err
}

type titledEvent struct {
	domain.BaseEvent
	Title string `json:"title"`
}

func TestNewConsumedEvent(t *testing.T) {
	correlationID := uuid.New()
	event := titledEvent{
		BaseEvent: domain.NewBaseEvent("standup", "series", "series.created"),
		Title:     "Standup",
	}
	event.SetMetadata(domain.EventMetadata{CorrelationID: correlationID, Source: "work"})

	envelope, err := eventbus.NewConsumedEvent(event)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), envelope.EventID)
	assert.Equal(t, "standup", envelope.AggregateID)
	assert.Equal(t, "series.created", envelope.RoutingKey)
	assert.JSONEq(t, `{"title":"Standup"}`, string(envelope.Payload))
	assert.Equal(t, correlationID.String(), envelope.Metadata.CorrelationID)
	assert.Empty(t, envelope.Metadata.CausationID)
	assert.Equal(t, "work", envelope.Metadata.Source)
}

func TestDecodeEvent(t *testing.T) {
	t.Run("envelope routing key wins", func(t *testing.T) {
		event, err := eventbus.DecodeEvent([]byte(`{"routing_key":"series.merged","aggregate_id":"standup"}`), "series.created")
		require.NoError(t, err)
		assert.Equal(t, "series.merged", event.RoutingKey)
		assert.Equal(t, "standup", event.AggregateID)
	})

	t.Run("transport key fills in", func(t *testing.T) {
		event, err := eventbus.DecodeEvent([]byte(`{"aggregate_id":"standup"}`), "series.created")
		require.NoError(t, err)
		assert.Equal(t, "series.created", event.RoutingKey)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := eventbus.DecodeEvent([]byte(`not json`), "series.created")
		assert.ErrorIs(t, err, eventbus.ErrMalformedEvent)

		_, err = eventbus.DecodeEvent([]byte(`{}`), "")
		assert.ErrorIs(t, err, eventbus.ErrMalformedEvent)
	})
}
