package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCatchUpper struct {
	mu     sync.Mutex
	calls  int
	err    error
	report *application.Report
}

func (m *mockCatchUpper) CatchUp(ctx context.Context) (*application.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.report, m.err
}

func (m *mockCatchUpper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNewCatchUpWorker_Defaults(t *testing.T) {
	w := NewCatchUpWorker(&mockCatchUpper{}, CatchUpWorkerConfig{}, nil)

	assert.Equal(t, DefaultSchedule, w.config.Schedule)
	assert.NotNil(t, w.config.Location)
	assert.NotNil(t, w.logger)
	assert.False(t, w.IsRunning())
}

func TestDefaultCatchUpWorkerConfig(t *testing.T) {
	config := DefaultCatchUpWorkerConfig()

	assert.Equal(t, "@every 5m", config.Schedule)
	assert.True(t, config.RunOnStart)
}

func TestCatchUpWorker_RunsOnStartAndStops(t *testing.T) {
	syncer := &mockCatchUpper{}
	config := DefaultCatchUpWorkerConfig()
	config.Schedule = "@every 1h"
	w := NewCatchUpWorker(syncer, config, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool { return syncer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.IsRunning())
	assert.Equal(t, 1, w.Stats().Runs)
}

func TestCatchUpWorker_ContextCancelled(t *testing.T) {
	w := NewCatchUpWorker(&mockCatchUpper{}, CatchUpWorkerConfig{Schedule: "@every 1h"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCatchUpWorker_Scheduled(t *testing.T) {
	syncer := &mockCatchUpper{}
	w := NewCatchUpWorker(syncer, CatchUpWorkerConfig{Schedule: "@every 1s"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return syncer.callCount() >= 1 }, 3*time.Second, 20*time.Millisecond)
	w.Stop()
}

func TestCatchUpWorker_InvalidSchedule(t *testing.T) {
	syncer := &mockCatchUpper{}
	w := NewCatchUpWorker(syncer, CatchUpWorkerConfig{Schedule: "not a schedule", RunOnStart: true}, nil)

	err := w.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync schedule")
	assert.Zero(t, syncer.callCount())
	assert.False(t, w.IsRunning())
}

func TestCatchUpWorker_NilSyncer(t *testing.T) {
	w := NewCatchUpWorker(nil, DefaultCatchUpWorkerConfig(), nil)

	assert.NoError(t, w.Run(context.Background()))
	assert.False(t, w.IsRunning())
}

func TestCatchUpWorker_RecordsFailure(t *testing.T) {
	syncer := &mockCatchUpper{err: errors.New("store unavailable")}
	w := NewCatchUpWorker(syncer, DefaultCatchUpWorkerConfig(), nil)

	w.runPass(context.Background())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.EqualError(t, stats.LastErr, "store unavailable")
	assert.False(t, stats.LastRun.IsZero())
}

func TestCatchUpWorker_SkipsPassAfterCancel(t *testing.T) {
	syncer := &mockCatchUpper{}
	w := NewCatchUpWorker(syncer, DefaultCatchUpWorkerConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.runPass(ctx)

	assert.Zero(t, syncer.callCount())
}

func TestCatchUpWorker_RecordsPassMetrics(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	config := DefaultCatchUpWorkerConfig()
	config.Metrics = metrics
	w := NewCatchUpWorker(&mockCatchUpper{err: errors.New("store unavailable")}, config, nil)

	w.runPass(context.Background())

	tag := observability.T("operation", "catch-up")
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationTotal, tag))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationErrors, tag))
	assert.Len(t, metrics.GetTimings(observability.MetricOperationDuration, tag), 1)
}
