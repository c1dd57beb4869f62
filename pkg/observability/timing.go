package observability

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Timer measures one run of an operation and records it as a timing, a
// counter, and on failure an error counter, all tagged with the operation.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	metrics   Metrics
	tags      []Tag
}

// StartTimer starts timing operation.
func StartTimer(operation string) *Timer {
	return &Timer{operation: operation, start: time.Now()}
}

// WithLogger logs the outcome when the timer stops.
func (t *Timer) WithLogger(logger *slog.Logger) *Timer {
	t.logger = logger
	return t
}

// WithMetrics sets the metrics collector.
func (t *Timer) WithMetrics(metrics Metrics) *Timer {
	t.metrics = metrics
	return t
}

// WithTags adds tags to every recorded series.
func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records a successful run.
func (t *Timer) Stop() time.Duration {
	return t.StopWithError(nil)
}

// StopWithError records a run that ended with err, which may be nil.
func (t *Timer) StopWithError(err error) time.Duration {
	elapsed := time.Since(t.start)
	t.log(elapsed, err)

	if t.metrics == nil {
		return elapsed
	}
	tags := append(slices.Clip(t.tags), T(OperationKey, t.operation))
	t.metrics.Timing(MetricOperationDuration, elapsed, tags...)
	t.metrics.Counter(MetricOperationTotal, 1, tags...)
	if err != nil {
		t.metrics.Counter(MetricOperationErrors, 1, tags...)
	}
	return elapsed
}

func (t *Timer) log(elapsed time.Duration, err error) {
	if t.logger == nil {
		return
	}
	attrs := []any{OperationKey, t.operation, "duration_ms", elapsed.Milliseconds()}
	if err != nil {
		t.logger.Error("operation failed", append(attrs, "error", err)...)
		return
	}
	t.logger.Info("operation completed", attrs...)
}

// TimeOperation times fn under the operation named in ctx, or under
// fallback when ctx names none, and records the outcome.
func TimeOperation(ctx context.Context, logger *slog.Logger, metrics Metrics, fallback string, fn func() error) error {
	operation := OperationFromContext(ctx)
	if operation == "" {
		operation = fallback
	}
	timer := StartTimer(operation).
		WithLogger(logger).
		WithMetrics(metrics)
	if source := SourceFromContext(ctx); source != "" {
		timer.WithTags(T(SourceKey, source))
	}

	err := fn()
	timer.StopWithError(err)
	return err
}
