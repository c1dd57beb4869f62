package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// ConsumerRegistry routes envelopes to the consumers registered for their
// routing key. Every transport dispatches through one.
type ConsumerRegistry struct {
	mu        sync.RWMutex
	consumers map[string][]EventConsumer
	metrics   observability.Metrics
	logger    *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		consumers: make(map[string][]EventConsumer),
		metrics:   observability.NoopMetrics{},
		logger:    logger,
	}
}

// WithMetrics records dispatch counts on m.
func (r *ConsumerRegistry) WithMetrics(m observability.Metrics) *ConsumerRegistry {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Register adds consumer under each of its event types.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, eventType := range consumer.EventTypes() {
		r.consumers[eventType] = append(r.consumers[eventType], consumer)
		r.logger.Debug("registered consumer", "event_type", eventType)
	}
}

// Consumers returns the consumers registered for eventType.
func (r *ConsumerRegistry) Consumers(eventType string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]EventConsumer(nil), r.consumers[eventType]...)
}

// EventTypes returns the routing keys with at least one consumer, sorted.
func (r *ConsumerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.consumers))
	for t := range r.consumers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of registrations. A consumer registered for two
// event types counts twice.
func (r *ConsumerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, consumers := range r.consumers {
		n += len(consumers)
	}
	return n
}

// Dispatch hands event to every consumer of its routing key. A failing
// consumer does not stop the others; their errors are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.Consumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.Debug("no consumers for event", "routing_key", event.RoutingKey)
		return nil
	}

	tag := observability.T("routing_key", event.RoutingKey)
	start := time.Now()
	var errs []error
	for _, consumer := range consumers {
		if err := consumer.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", consumer, err))
		}
	}

	r.metrics.Counter(observability.MetricEventsConsumed, 1, tag)
	if err := errors.Join(errs...); err != nil {
		r.metrics.Counter(observability.MetricEventsRejected, 1, tag)
		r.logger.Error("event dispatch failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"failed_consumers", len(errs),
			"error", err,
		)
		return err
	}

	r.logger.Debug("event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"consumers", len(consumers),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
