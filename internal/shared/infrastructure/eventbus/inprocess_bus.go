package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/almanac/internal/shared/domain"
)

// InProcessEventBus delivers published envelopes synchronously to its
// registry. It stands in for a broker when the CLI runs alone.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	// mu serializes dispatch so consumers never see two events at once,
	// matching the one-at-a-time delivery of the brokered transports.
	mu sync.Mutex
}

// NewInProcessEventBus creates a bus dispatching through registry. A nil
// registry gets a fresh one.
func NewInProcessEventBus(registry *ConsumerRegistry, logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewConsumerRegistry(logger)
	}
	return &InProcessEventBus{registry: registry, logger: logger}
}

// RegisterConsumer registers an event consumer.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Registry returns the registry the bus dispatches through.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.registry
}

// Publish decodes payload and dispatches it. A malformed payload is
// logged and dropped; a consumer failure is returned so the outbox
// retries the message.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event, err := DecodeEvent(payload, routingKey)
	if err != nil {
		b.logger.Error("dropping event", "routing_key", routingKey, "error", err)
		return nil
	}
	return b.dispatch(ctx, event)
}

// PublishDomainEvent wraps event in its envelope and dispatches it.
func (b *InProcessEventBus) PublishDomainEvent(ctx context.Context, event domain.DomainEvent) error {
	envelope, err := NewConsumedEvent(event)
	if err != nil {
		return err
	}
	return b.dispatch(ctx, envelope)
}

func (b *InProcessEventBus) dispatch(ctx context.Context, event *ConsumedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Dispatch(ctx, event)
}

// Start blocks until ctx is done. Delivery happens inside Publish.
func (b *InProcessEventBus) Start(ctx context.Context) error {
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Close is a no-op.
func (b *InProcessEventBus) Close() error {
	return nil
}

var (
	_ Publisher = (*InProcessEventBus)(nil)
	_ Consumer  = (*InProcessEventBus)(nil)
)
