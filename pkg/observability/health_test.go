package observability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRegistry_Check(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("database", DatabaseHealthChecker(func(context.Context) error { return nil }))
	r.Register("redis", RedisHealthChecker(func(context.Context) error { return errors.New("refused") }))

	results := r.Check(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, HealthStatusHealthy, results["database"].Status)
	assert.Equal(t, HealthStatusDegraded, results["redis"].Status)
	assert.Contains(t, results["redis"].Message, "refused")
	assert.Equal(t, HealthStatusDegraded, r.OverallStatus())
}

func TestHealthRegistry_UnhealthyWins(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("database", DatabaseHealthChecker(func(context.Context) error { return errors.New("closed") }))
	r.Register("nats", NATSHealthChecker(func(context.Context) error { return errors.New("closed") }))

	health := r.GetOverallHealth(context.Background())

	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	data, err := health.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "unhealthy", decoded["status"])
}

func TestHealthRegistry_CheckOneAndUnregister(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("rabbitmq", RabbitMQHealthChecker(func(context.Context) error { return nil }))

	result, ok := r.CheckOne(context.Background(), "rabbitmq")
	require.True(t, ok)
	assert.Equal(t, HealthStatusHealthy, result.Status)

	r.Unregister("rabbitmq")
	_, ok = r.CheckOne(context.Background(), "rabbitmq")
	assert.False(t, ok)
	assert.Equal(t, HealthStatusHealthy, r.OverallStatus())
}

func TestSyncPassHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("no pass yet", func(t *testing.T) {
		check := SyncPassHealthChecker(func() (time.Time, error) { return time.Time{}, nil }, time.Minute)
		assert.Equal(t, HealthStatusHealthy, check(ctx).Status)
	})

	t.Run("recent pass", func(t *testing.T) {
		check := SyncPassHealthChecker(func() (time.Time, error) { return time.Now(), nil }, time.Minute)
		assert.Equal(t, HealthStatusHealthy, check(ctx).Status)
	})

	t.Run("overdue pass", func(t *testing.T) {
		check := SyncPassHealthChecker(func() (time.Time, error) { return time.Now().Add(-time.Hour), nil }, time.Minute)
		result := check(ctx)
		assert.Equal(t, HealthStatusDegraded, result.Status)
		assert.Equal(t, "sync pass overdue", result.Message)
	})

	t.Run("failed pass", func(t *testing.T) {
		check := SyncPassHealthChecker(func() (time.Time, error) { return time.Now(), errors.New("boom") }, time.Minute)
		result := check(ctx)
		assert.Equal(t, HealthStatusDegraded, result.Status)
		assert.Contains(t, result.Message, "boom")
	})
}

func TestHealthRegistry_PanickingAndSlowChecks(t *testing.T) {
	r := NewHealthRegistry()
	r.timeout = 20 * time.Millisecond
	r.Register("broken", func(context.Context) HealthCheckResult { panic("nil pool") })
	r.Register("slow", func(ctx context.Context) HealthCheckResult {
		<-ctx.Done()
		return HealthCheckResult{Status: HealthStatusDegraded, Message: ctx.Err().Error()}
	})

	results := r.Check(context.Background())

	assert.Equal(t, HealthStatusUnhealthy, results["broken"].Status)
	assert.Contains(t, results["broken"].Message, "nil pool")
	assert.Equal(t, HealthStatusDegraded, results["slow"].Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), results["slow"].Message)
	assert.Positive(t, results["slow"].Duration)
}
