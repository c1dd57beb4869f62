// Package resilience guards calendar providers with circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// ErrSourceUnavailable is returned while a source's breaker is open.
var ErrSourceUnavailable = errors.New("calendar source unavailable")

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	// Enabled turns the breakers on.
	Enabled bool

	// MaxRequests is the maximum number of enumerations allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failed enumerations
	// that trips the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         10 * time.Minute,
		Timeout:          5 * time.Minute,
		FailureThreshold: 3,
	}
}

// Decorator returns a provider decorator that gives every source its own
// breaker.
func Decorator(cfg BreakerConfig, metrics observability.Metrics, logger *slog.Logger) application.ProviderDecorator {
	return func(source application.SourceConfig, provider application.RawItemProvider) application.RawItemProvider {
		if !cfg.Enabled {
			return provider
		}
		return NewBreakerProvider(source.ID, provider, cfg, metrics, logger)
	}
}

// BreakerProvider wraps a provider in a circuit breaker. A whole enumeration
// counts as one request; it fails when the provider yields an error.
type BreakerProvider struct {
	name     string
	provider application.RawItemProvider
	breaker  *gobreaker.CircuitBreaker[struct{}]
	metrics  observability.Metrics
	logger   *slog.Logger
}

// NewBreakerProvider wraps provider in a breaker named after the source.
func NewBreakerProvider(name string, provider application.RawItemProvider, cfg BreakerConfig, metrics observability.Metrics, logger *slog.Logger) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"source", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Counter(observability.MetricBreakerState, 1,
				observability.T("source", name), observability.T("state", to.String()))
		},
		// Cancellation is the caller's doing, not the source's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &BreakerProvider{
		name:     name,
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker[struct{}](settings),
		metrics:  metrics,
		logger:   logger,
	}
}

// State returns the breaker state.
func (p *BreakerProvider) State() string {
	return p.breaker.State().String()
}

// Items enumerates the wrapped provider unless the breaker is open.
func (p *BreakerProvider) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		ran := false
		_, err := p.breaker.Execute(func() (struct{}, error) {
			ran = true
			var failure error
			for item, err := range p.provider.Items(ctx, q) {
				if err != nil {
					failure = err
				}
				if !yield(item, err) {
					break
				}
			}
			return struct{}{}, failure
		})

		outcome := "success"
		switch {
		case !ran:
			outcome = "rejected"
			yield(domain.RawItem{}, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, p.name, err))
		case err != nil:
			outcome = "failure"
		}
		p.metrics.Counter(observability.MetricProviderRequests, 1,
			observability.T("source", p.name), observability.T("outcome", outcome))
	}
}
