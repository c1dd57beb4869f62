package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerRegistry_Register(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	registry.Register(&mockConsumer{eventTypes: []string{"series.created", "occurrence.detached"}})
	registry.Register(&mockConsumer{eventTypes: []string{"series.created"}})

	assert.Len(t, registry.Consumers("series.created"), 2)
	assert.Len(t, registry.Consumers("occurrence.detached"), 1)
	assert.Empty(t, registry.Consumers("store.reset"))
	assert.Equal(t, []string{"occurrence.detached", "series.created"}, registry.EventTypes())
	assert.Equal(t, 3, registry.Len())
}

func TestConsumerRegistry_Dispatch(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	registry := eventbus.NewConsumerRegistry(nil).WithMetrics(metrics)
	created := &mockConsumer{eventTypes: []string{"series.created"}}
	merged := &mockConsumer{eventTypes: []string{"series.merged"}}
	registry.Register(created)
	registry.Register(merged)

	err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "series.created", AggregateID: "standup"})

	require.NoError(t, err)
	require.Len(t, created.events, 1)
	assert.Equal(t, "standup", created.events[0].AggregateID)
	assert.Empty(t, merged.events)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsConsumed, observability.T("routing_key", "series.created")))
}

func TestConsumerRegistry_DispatchWithoutConsumers(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	registry := eventbus.NewConsumerRegistry(nil).WithMetrics(metrics)

	err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "store.reset"})

	assert.NoError(t, err)
	assert.Zero(t, metrics.GetCounter(observability.MetricEventsConsumed, observability.T("routing_key", "store.reset")))
}

func TestConsumerRegistry_DispatchJoinsErrors(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	registry := eventbus.NewConsumerRegistry(nil).WithMetrics(metrics)
	errA := errors.New("shadow failed")
	errB := errors.New("index failed")
	first := &mockConsumer{eventTypes: []string{"series.created"}, err: errA}
	healthy := &mockConsumer{eventTypes: []string{"series.created"}}
	last := &mockConsumer{eventTypes: []string{"series.created"}, err: errB}
	registry.Register(first)
	registry.Register(healthy)
	registry.Register(last)

	err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "series.created"})

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, healthy.events, 1)
	assert.Len(t, last.events, 1)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsRejected, observability.T("routing_key", "series.created")))
}
