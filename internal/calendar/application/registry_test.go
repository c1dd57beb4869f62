package application_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedProvider struct {
	inner application.RawItemProvider
	tag   string
}

func (p taggedProvider) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return p.inner.Items(ctx, q)
}

func TestNewProviderRegistry(t *testing.T) {
	registry := application.NewProviderRegistry()

	assert.Empty(t, registry.SupportedTypes())
	assert.False(t, registry.HasProvider(domain.SourceICS))
}

func TestProviderRegistry_Create(t *testing.T) {
	registry := application.NewProviderRegistry()
	var got application.SourceConfig
	registry.Register(domain.SourceICS, func(ctx context.Context, cfg application.SourceConfig) (application.RawItemProvider, error) {
		got = cfg
		return application.SliceProvider{}, nil
	})

	cfg := application.SourceConfig{ID: "holidays", Type: domain.SourceICS, URL: "https://example.com/holidays.ics"}
	provider, err := registry.Create(context.Background(), cfg)

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.Equal(t, cfg.URL, got.URL)
	assert.True(t, registry.HasProvider(domain.SourceICS))
}

func TestProviderRegistry_Create_NotRegistered(t *testing.T) {
	registry := application.NewProviderRegistry()

	_, err := registry.Create(context.Background(), application.SourceConfig{ID: "x", Type: domain.SourceGoogle})

	assert.ErrorIs(t, err, application.ErrUnsupportedSource)
}

func TestProviderRegistry_Create_FactoryError(t *testing.T) {
	registry := application.NewProviderRegistry()
	boom := errors.New("bad url")
	registry.Register(domain.SourceCalDAV, func(context.Context, application.SourceConfig) (application.RawItemProvider, error) {
		return nil, boom
	})

	_, err := registry.Create(context.Background(), application.SourceConfig{ID: "work", Type: domain.SourceCalDAV})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "work")
}

func TestProviderRegistry_Use(t *testing.T) {
	registry := application.NewProviderRegistry()
	registry.Register(domain.SourceICS, func(context.Context, application.SourceConfig) (application.RawItemProvider, error) {
		return application.SliceProvider{}, nil
	})
	registry.Use(func(cfg application.SourceConfig, p application.RawItemProvider) application.RawItemProvider {
		return taggedProvider{inner: p, tag: "first"}
	})
	registry.Use(func(cfg application.SourceConfig, p application.RawItemProvider) application.RawItemProvider {
		return taggedProvider{inner: p, tag: cfg.ID}
	})

	provider, err := registry.Create(context.Background(), application.SourceConfig{ID: "feed", Type: domain.SourceICS})
	require.NoError(t, err)

	outer, ok := provider.(taggedProvider)
	require.True(t, ok)
	assert.Equal(t, "feed", outer.tag)
	inner, ok := outer.inner.(taggedProvider)
	require.True(t, ok)
	assert.Equal(t, "first", inner.tag)
}

func TestProviderRegistry_SupportedTypes(t *testing.T) {
	registry := application.NewProviderRegistry()
	factory := func(context.Context, application.SourceConfig) (application.RawItemProvider, error) {
		return application.SliceProvider{}, nil
	}
	registry.Register(domain.SourceICS, factory)
	registry.Register(domain.SourceCalDAV, factory)
	registry.Register(domain.SourceApple, factory)

	assert.Equal(t, []domain.SourceType{domain.SourceApple, domain.SourceCalDAV, domain.SourceICS}, registry.SupportedTypes())
}

func TestProviderRegistry_BuildSources(t *testing.T) {
	registry := application.NewProviderRegistry()
	registry.Register(domain.SourceICS, func(context.Context, application.SourceConfig) (application.RawItemProvider, error) {
		return application.SliceProvider{}, nil
	})

	sources, err := registry.BuildSources(context.Background(), []application.SourceConfig{
		{ID: "holidays", Type: domain.SourceICS},
		{ID: "work", Type: domain.SourceGoogle},
	})

	require.Len(t, sources, 1)
	assert.Equal(t, "holidays", sources[0].ID)
	assert.ErrorIs(t, err, application.ErrUnsupportedSource)
}

func TestSourceConfig_EffectiveOrigin(t *testing.T) {
	assert.Equal(t, domain.OriginSubscription, application.SourceConfig{Type: domain.SourceICS}.EffectiveOrigin())
	assert.Equal(t, domain.OriginPersonal, application.SourceConfig{Type: domain.SourceCalDAV}.EffectiveOrigin())
	assert.Equal(t, domain.OriginShare, application.SourceConfig{Type: domain.SourceCalDAV, Origin: domain.OriginShare}.EffectiveOrigin())
}
