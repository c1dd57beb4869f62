package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/caldav"
	googleCal "github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/google"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/ics"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/resilience"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"golang.org/x/oauth2"
)

var (
	// ErrMissingURL is returned for sources that need a URL and have none.
	ErrMissingURL = errors.New("source URL not configured")
	// ErrMissingCredentials is returned for sources without credentials.
	ErrMissingCredentials = errors.New("source credentials not configured")
)

// OAuthTokenProvider provides OAuth2 tokens for a source.
type OAuthTokenProvider interface {
	TokenSource(ctx context.Context, cfg application.SourceConfig) (oauth2.TokenSource, error)
}

// ProviderConfig holds configuration for creating provider factories.
type ProviderConfig struct {
	// GoogleOAuth supplies tokens for Google sources. When nil, the
	// source's refresh token is traded using GoogleClient.
	GoogleOAuth   OAuthTokenProvider
	GoogleClient  googleCal.OAuthConfig
	GoogleBaseURL string

	// HTTPClient is used by CalDAV and feed sources when set.
	HTTPClient *http.Client

	Breaker resilience.BreakerConfig
	Metrics observability.Metrics
	Logger  *slog.Logger
}

// RegisterProviders registers all available calendar providers with the registry.
func RegisterProviders(registry *application.ProviderRegistry, config ProviderConfig) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Google Calendar
	registry.Register(domain.SourceGoogle, func(ctx context.Context, cfg application.SourceConfig) (application.RawItemProvider, error) {
		tokens, err := googleTokens(ctx, config, cfg)
		if err != nil {
			return nil, err
		}
		return googleCal.NewProviderWithBaseURL(tokens, logger, config.GoogleBaseURL).
			WithCalendarIDs(cfg.CalendarIDs...).
			WithOrigin(cfg.EffectiveOrigin()), nil
	})
	logger.Debug("registered Google Calendar provider")

	// Apple Calendar (iCloud)
	registry.Register(domain.SourceApple, func(ctx context.Context, cfg application.SourceConfig) (application.RawItemProvider, error) {
		if cfg.URL == "" {
			cfg.URL = caldav.AppleCalDAVURL
		}
		return newCalDAVProvider(config, cfg, logger)
	})
	logger.Debug("registered Apple Calendar provider")

	// Generic CalDAV (Fastmail, Nextcloud, etc.)
	registry.Register(domain.SourceCalDAV, func(ctx context.Context, cfg application.SourceConfig) (application.RawItemProvider, error) {
		if cfg.URL == "" {
			return nil, ErrMissingURL
		}
		return newCalDAVProvider(config, cfg, logger)
	})
	logger.Debug("registered CalDAV provider")

	// Subscription feeds
	registry.Register(domain.SourceICS, func(ctx context.Context, cfg application.SourceConfig) (application.RawItemProvider, error) {
		if cfg.URL == "" {
			return nil, ErrMissingURL
		}
		p := ics.NewProvider(cfg.URL, logger).
			WithOrigin(cfg.EffectiveOrigin()).
			WithSelf(cfg.Username)
		if config.HTTPClient != nil {
			p.WithHTTPClient(config.HTTPClient)
		}
		return p, nil
	})
	logger.Debug("registered iCalendar subscription provider")

	if config.Breaker.Enabled {
		registry.Use(resilience.Decorator(config.Breaker, config.Metrics, logger))
	}
}

// NewRegistry returns a registry with every provider registered.
func NewRegistry(config ProviderConfig) *application.ProviderRegistry {
	registry := application.NewProviderRegistry()
	RegisterProviders(registry, config)
	return registry
}

func googleTokens(ctx context.Context, config ProviderConfig, cfg application.SourceConfig) (oauth2.TokenSource, error) {
	if config.GoogleOAuth != nil {
		tokens, err := config.GoogleOAuth.TokenSource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to get Google token source: %w", err)
		}
		return tokens, nil
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: google source %s needs a refresh token", ErrMissingCredentials, cfg.ID)
	}
	// The token source outlives the factory call, so it must not inherit
	// a context that is cancelled when registration finishes.
	return googleCal.RefreshTokenSource(context.WithoutCancel(ctx), config.GoogleClient, cfg.RefreshToken), nil
}

func newCalDAVProvider(config ProviderConfig, cfg application.SourceConfig, logger *slog.Logger) (application.RawItemProvider, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: %s source %s needs a username and password", ErrMissingCredentials, cfg.Type, cfg.ID)
	}
	p := caldav.NewProvider(cfg.URL, cfg.Username, cfg.Password, logger).
		WithCalendarPaths(cfg.CalendarIDs...).
		WithOrigin(cfg.EffectiveOrigin())
	if config.HTTPClient != nil {
		p.WithHTTPClient(config.HTTPClient)
	}
	return p, nil
}
