package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/google/uuid"
)

// ErrMalformedEvent is returned when a message body is not an event
// envelope. Such messages are dropped, never retried.
var ErrMalformedEvent = errors.New("malformed event envelope")

// Publisher sends encoded envelopes to a transport.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// EventConsumer handles specific event types.
type EventConsumer interface {
	// EventTypes returns the routing keys this consumer handles,
	// e.g. "series.created".
	EventTypes() []string

	Handle(ctx context.Context, event *ConsumedEvent) error
}

// Consumer reads envelopes from a transport and dispatches them.
type Consumer interface {
	// Start blocks until ctx is done or the transport fails.
	Start(ctx context.Context) error
	RegisterConsumer(consumer EventConsumer)
	Close() error
}

// ConsumedEvent is the envelope every publisher puts on the wire.
type ConsumedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata carries tracing ids across the transport.
type EventMetadata struct {
	Source        string `json:"source,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}

// NewConsumedEvent wraps a domain event in the wire envelope. The event's
// exported fields become the payload.
func NewConsumedEvent(event domain.DomainEvent) (*ConsumedEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event.RoutingKey(), err)
	}
	meta := event.Metadata()
	envelope := &ConsumedEvent{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
		Metadata:      EventMetadata{Source: meta.Source},
	}
	if meta.CorrelationID != uuid.Nil {
		envelope.Metadata.CorrelationID = meta.CorrelationID.String()
	}
	if meta.CausationID != uuid.Nil {
		envelope.Metadata.CausationID = meta.CausationID.String()
	}
	return envelope, nil
}

// DecodeEvent parses an envelope. routingKey is the transport's key and
// fills in an envelope that lacks one.
func DecodeEvent(body []byte, routingKey string) (*ConsumedEvent, error) {
	event := &ConsumedEvent{}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	if event.RoutingKey == "" {
		return nil, fmt.Errorf("%w: no routing key", ErrMalformedEvent)
	}
	return event, nil
}
