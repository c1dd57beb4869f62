package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// ErrUnsupportedSource is returned when no provider is registered for a
// source type.
var ErrUnsupportedSource = errors.New("no provider registered for source type")

// SourceConfig describes one configured calendar source.
type SourceConfig struct {
	ID          string
	Type        domain.SourceType
	URL         string
	Username    string
	Password    string
	CalendarIDs []string
	// RefreshToken authorizes OAuth sources.
	RefreshToken string
	// Origin overrides the source type's default origin when set.
	Origin domain.Origin
}

// EffectiveOrigin returns the origin items from this source are stamped with.
func (c SourceConfig) EffectiveOrigin() domain.Origin {
	if c.Origin != domain.OriginUnknown {
		return c.Origin
	}
	return c.Type.DefaultOrigin()
}

// ProviderFactory creates the provider for a configured source.
type ProviderFactory func(ctx context.Context, cfg SourceConfig) (RawItemProvider, error)

// ProviderDecorator wraps every provider the registry creates.
type ProviderDecorator func(cfg SourceConfig, provider RawItemProvider) RawItemProvider

// ProviderRegistry maps source types to provider factories.
type ProviderRegistry struct {
	mu         sync.RWMutex
	factories  map[domain.SourceType]ProviderFactory
	decorators []ProviderDecorator
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		factories: make(map[domain.SourceType]ProviderFactory),
	}
}

// Register registers the factory for a source type.
func (r *ProviderRegistry) Register(sourceType domain.SourceType, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[sourceType] = factory
}

// Use adds a decorator applied to every provider created afterwards.
// Decorators run in registration order, the last one outermost.
func (r *ProviderRegistry) Use(decorator ProviderDecorator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decorators = append(r.decorators, decorator)
}

// Create creates the provider for cfg.
func (r *ProviderRegistry) Create(ctx context.Context, cfg SourceConfig) (RawItemProvider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	decorators := slices.Clone(r.decorators)
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, cfg.Type)
	}
	provider, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider for %s: %w", cfg.Type.DisplayName(), cfg.ID, err)
	}
	for _, decorate := range decorators {
		provider = decorate(cfg, provider)
	}
	return provider, nil
}

// HasProvider reports whether a factory is registered for sourceType.
func (r *ProviderRegistry) HasProvider(sourceType domain.SourceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[sourceType]
	return ok
}

// SupportedTypes returns the registered source types in sorted order.
func (r *ProviderRegistry) SupportedTypes() []domain.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.SourceType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// BuildSources creates a Source for every config. Sources whose provider
// cannot be created are left out and their errors joined.
func (r *ProviderRegistry) BuildSources(ctx context.Context, cfgs []SourceConfig) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		provider, err := r.Create(ctx, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sources = append(sources, Source{ID: cfg.ID, Type: cfg.Type, Provider: provider})
	}
	return sources, errors.Join(errs...)
}
