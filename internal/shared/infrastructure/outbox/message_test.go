package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEvent is a concrete implementation of DomainEvent for testing.
type testEvent struct {
	domain.BaseEvent
	Title string `json:"title"`
}

func newTestEvent(aggregateID, title string) *testEvent {
	return &testEvent{
		BaseEvent: domain.NewBaseEvent(aggregateID, "series", "series.created"),
		Title:     title,
	}
}

func TestNewMessage(t *testing.T) {
	t.Run("copies the event identity", func(t *testing.T) {
		event := newTestEvent("standup", "Standup")

		msg, err := NewMessage(event)

		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, event.EventID(), msg.EventID)
		assert.Equal(t, "series", msg.AggregateType)
		assert.Equal(t, "standup", msg.AggregateID)
		assert.Equal(t, "series.created", msg.EventType)
		assert.Equal(t, "series.created", msg.RoutingKey)
		assert.NotNil(t, msg.Metadata)
		assert.Equal(t, event.OccurredAt(), msg.CreatedAt)
		assert.Nil(t, msg.PublishedAt)
		assert.Nil(t, msg.NextRetryAt)
		assert.Equal(t, 0, msg.RetryCount)
		assert.Equal(t, int64(0), msg.ID)
	})

	t.Run("payload is the consumer envelope", func(t *testing.T) {
		event := newTestEvent("standup", "Standup")
		event.SetMetadata(domain.EventMetadata{
			CorrelationID: uuid.New(),
			Source:        "work",
		})

		msg, err := NewMessage(event)
		require.NoError(t, err)

		var envelope eventbus.ConsumedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, event.EventID(), envelope.EventID)
		assert.Equal(t, "standup", envelope.AggregateID)
		assert.Equal(t, "series.created", envelope.RoutingKey)
		assert.Equal(t, "work", envelope.Metadata.Source)
		assert.Equal(t, event.Metadata().CorrelationID.String(), envelope.Metadata.CorrelationID)

		var body struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(envelope.Payload, &body))
		assert.Equal(t, "Standup", body.Title)
	})

	t.Run("serializes event metadata to JSON", func(t *testing.T) {
		event := newTestEvent("standup", "Standup")
		metadata := domain.EventMetadata{
			CorrelationID: uuid.New(),
			CausationID:   uuid.New(),
		}
		event.SetMetadata(metadata)

		msg, err := NewMessage(event)

		require.NoError(t, err)
		assert.Contains(t, string(msg.Metadata), metadata.CorrelationID.String())
	})
}

func TestMessage_State(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	later, earlier := now.Add(time.Minute), now.Add(-time.Minute)

	tests := []struct {
		name string
		msg  Message
		want State
	}{
		{"new", Message{}, StatePending},
		{"retry due", Message{RetryCount: 1, NextRetryAt: &earlier}, StatePending},
		{"retry scheduled", Message{RetryCount: 1, NextRetryAt: &later}, StateWaiting},
		{"published", Message{PublishedAt: &earlier}, StatePublished},
		{"dead", Message{NextRetryAt: &later, DeadLetteredAt: &earlier}, StateDead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.State(now))
		})
	}
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestMessage_LastAttempt(t *testing.T) {
	msg := &Message{RetryCount: 3}
	assert.True(t, msg.LastAttempt(4))
	assert.False(t, msg.LastAttempt(5))
	assert.True(t, (&Message{}).LastAttempt(1))
}
