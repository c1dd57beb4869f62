package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the result of a health check.
type HealthCheckResult struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheckResult

// DefaultHealthCheckTimeout bounds a single check.
const DefaultHealthCheckTimeout = 2 * time.Second

// HealthRegistry runs the health checks of the wired components. Checks
// run concurrently, each under its own timeout.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	last     map[string]HealthCheckResult
	timeout  time.Duration
}

// NewHealthRegistry creates a registry using DefaultHealthCheckTimeout.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		checkers: make(map[string]HealthChecker),
		timeout:  DefaultHealthCheckTimeout,
	}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Unregister removes a checker and its last result.
func (r *HealthRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
	delete(r.last, name)
}

// Check runs every check and remembers the results for OverallStatus.
func (r *HealthRegistry) Check(ctx context.Context) map[string]HealthCheckResult {
	r.mu.RLock()
	checkers := maps.Clone(r.checkers)
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]HealthCheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := r.run(ctx, name, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	r.mu.Lock()
	r.last = results
	r.mu.Unlock()
	return results
}

// CheckOne runs the named check. It reports false for an unknown name.
func (r *HealthRegistry) CheckOne(ctx context.Context, name string) (HealthCheckResult, bool) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return HealthCheckResult{}, false
	}
	return r.run(ctx, name, checker), true
}

// run executes one checker. A checker that panics is unhealthy.
func (r *HealthRegistry) run(ctx context.Context, name string, checker HealthChecker) (result HealthCheckResult) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("%s check panicked: %v", name, p),
			}
		}
		result.Duration = time.Since(start)
		result.Timestamp = time.Now()
	}()
	return checker(ctx)
}

// OverallStatus is the worst status of the last Check. It is healthy
// before the first Check.
func (r *HealthRegistry) OverallStatus() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return worst(r.last)
}

func worst(results map[string]HealthCheckResult) HealthStatus {
	status := HealthStatusHealthy
	for _, result := range results {
		switch result.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// OverallHealth is the response of the readiness endpoint.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// GetOverallHealth runs all checks and summarizes them.
func (r *HealthRegistry) GetOverallHealth(ctx context.Context) OverallHealth {
	checks := r.Check(ctx)
	return OverallHealth{
		Status:    worst(checks),
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ToJSON serializes the overall health to JSON.
func (h OverallHealth) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// pingChecker reports component as failStatus when ping returns an error.
func pingChecker(component string, failStatus HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  failStatus,
				Message: component + " connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: component + " connection healthy",
		}
	}
}

// DatabaseHealthChecker creates a health checker for database connectivity.
func DatabaseHealthChecker(pingFunc func(ctx context.Context) error) HealthChecker {
	return pingChecker("database", HealthStatusUnhealthy, pingFunc)
}

// RedisHealthChecker creates a health checker for the shared generation
// counter. Without Redis, passes still run but cancellation is local.
func RedisHealthChecker(pingFunc func(ctx context.Context) error) HealthChecker {
	return pingChecker("redis", HealthStatusDegraded, pingFunc)
}

// RabbitMQHealthChecker creates a health checker for RabbitMQ connectivity.
func RabbitMQHealthChecker(checkFunc func(ctx context.Context) error) HealthChecker {
	return pingChecker("rabbitmq", HealthStatusDegraded, checkFunc)
}

// NATSHealthChecker creates a health checker for NATS connectivity.
func NATSHealthChecker(checkFunc func(ctx context.Context) error) HealthChecker {
	return pingChecker("nats", HealthStatusDegraded, checkFunc)
}

// SyncPassHealthChecker reports the sync loop as degraded when the last
// pass failed or when no pass has completed within maxAge.
func SyncPassHealthChecker(lastPass func() (time.Time, error), maxAge time.Duration) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		at, err := lastPass()
		details := map[string]any{"last_pass": at}
		switch {
		case err != nil:
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "last sync pass failed: " + err.Error(),
				Details: details,
			}
		case at.IsZero():
			return HealthCheckResult{
				Status:  HealthStatusHealthy,
				Message: "no sync pass yet",
			}
		case maxAge > 0 && time.Since(at) > maxAge:
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "sync pass overdue",
				Details: details,
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "sync pass completed",
			Details: details,
		}
	}
}
