package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// State is where a message is in its delivery lifecycle.
type State int

const (
	// StatePending messages are due for delivery.
	StatePending State = iota
	// StateWaiting messages failed and wait for their next retry.
	StateWaiting
	StatePublished
	// StateDead messages exhausted their retries and are never relayed.
	StateDead
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateWaiting:
		return "waiting"
	case StatePublished:
		return "published"
	case StateDead:
		return "dead"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Message is one domain event written to the outbox in the transaction
// that produced it. Payload holds the eventbus envelope, published as is.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	RoutingKey    string
	Payload       json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time
	RetryCount    int

	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage wraps event in its wire envelope.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	envelope, err := eventbus.NewConsumedEvent(event)
	if err != nil {
		return nil, fmt.Errorf("build envelope for %s: %w", event.RoutingKey(), err)
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode envelope for %s: %w", event.RoutingKey(), err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", event.RoutingKey(), err)
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// State reports the lifecycle state of m at now.
func (m *Message) State(now time.Time) State {
	switch {
	case m.DeadLetteredAt != nil:
		return StateDead
	case m.PublishedAt != nil:
		return StatePublished
	case m.NextRetryAt != nil && m.NextRetryAt.After(now):
		return StateWaiting
	}
	return StatePending
}

// LastAttempt reports whether one more failure exhausts maxRetries.
func (m *Message) LastAttempt(maxRetries int) bool {
	return m.RetryCount+1 >= maxRetries
}
