package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/application/subscribers"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	googleCal "github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/google"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/generation"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/memory"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/persistence"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/resilience"
	"github.com/felixgeelhaar/almanac/internal/calendar/setup"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database/postgres" // registers the postgres driver
	_ "github.com/felixgeelhaar/almanac/internal/shared/infrastructure/database/sqlite"   // registers the sqlite driver
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/almanac/pkg/config"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Options adjusts how a container is wired.
type Options struct {
	// DryRun keeps every write in memory: nothing touches the database,
	// Redis or the event transport.
	DryRun bool
	// Sources replaces the sources file when non-nil.
	Sources []application.SourceConfig
	// Metrics defaults to an in-memory collector.
	Metrics observability.Metrics
}

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics
	Health  *observability.HealthRegistry
	DryRun  bool

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Calendar
	Calendar    calmath.Calendar
	Store       application.Store
	SyncStates  domain.SyncStateRepository
	Generations application.GenerationSource
	Queue       *application.Queue
	Registry    *application.ProviderRegistry
	Sources     []application.Source
	SyncService *application.SyncService

	// Events
	OutboxRepo        outbox.Repository
	EventPublisher    eventbus.Publisher
	OutboxProcessor   *outbox.Processor
	Consumers         *eventbus.ConsumerRegistry
	InProcessEventBus *eventbus.InProcessEventBus
	ShadowSubscriber  *subscribers.SeriesShadowSubscriber
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Health:  observability.NewHealthRegistry(),
		DryRun:  opts.DryRun,
	}

	cal, err := calendarFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.Calendar = cal

	if opts.DryRun {
		c.initMemoryStorage()
	} else if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := c.initGenerations(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initEvents(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.initSync(ctx, opts.Sources); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("container initialized",
		"dry_run", opts.DryRun,
		"driver", c.DBDriver,
		"sources", len(c.Sources),
		"transport", cfg.EventTransport,
	)
	return c, nil
}

func calendarFromConfig(cfg *config.Config) (calmath.Calendar, error) {
	loc, err := cfg.Location()
	if err != nil {
		return calmath.Calendar{}, err
	}
	weekStart, err := cfg.WeekStart()
	if err != nil {
		return calmath.Calendar{}, err
	}
	return calmath.New(loc, weekStart), nil
}

func (c *Container) initMemoryStorage() {
	c.Store = memory.NewStore()
	c.SyncStates = memory.NewSyncStateRepository()
	c.OutboxRepo = outbox.NewInMemoryRepository()
	c.Logger.Info("dry run, changes are kept in memory")
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbCfg := database.Config{
		Driver:     database.Driver(c.Config.DatabaseDriver),
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	}
	if c.Config.LocalMode {
		dbCfg.Driver = database.DriverSQLite
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.OutboxRepo = outbox.NewSQLRepository(conn)
	c.Store = persistence.NewStore(conn, c.OutboxRepo, c.Logger)
	c.SyncStates = persistence.NewSyncStateRepository(conn)
	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))

	c.Logger.Info("connected to database", "driver", c.DBDriver)
	return nil
}

// initGenerations shares the store generation through Redis when it is
// configured. Development falls back to an in-process counter.
func (c *Container) initGenerations(ctx context.Context) error {
	c.Generations = application.NewLocalGenerations()
	if c.DryRun || c.Config.RedisURL == "" {
		return nil
	}

	client, err := generation.Connect(ctx, c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return err
		}
		c.Logger.Warn("Redis not available, generations are local to this process", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Generations = generation.NewRedisSource(client, generation.DefaultKey)
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

// initEvents builds the publisher the outbox drains into and the consumers
// that react to published events.
func (c *Container) initEvents() error {
	c.Consumers = eventbus.NewConsumerRegistry(c.Logger).WithMetrics(c.Metrics)

	transport := c.Config.EventTransport
	if c.DryRun {
		transport = config.TransportNoop
	}

	switch transport {
	case config.TransportRabbitMQ:
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err != nil {
			if !c.Config.IsDevelopment() {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
			break
		}
		c.EventPublisher = publisher
		c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Healthy))
	case config.TransportNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = c.Config.NATSURL
		publisher, err := eventbus.NewNATSPublisher(natsCfg, c.Logger)
		if err != nil {
			if !c.Config.IsDevelopment() {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			c.Logger.Warn("NATS not available, using noop publisher", "error", err)
			c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
			break
		}
		c.EventPublisher = publisher
		c.Health.Register("nats", observability.NATSHealthChecker(publisher.Healthy))
	case config.TransportInProcess:
		c.InProcessEventBus = eventbus.NewInProcessEventBus(c.Consumers, c.Logger)
		c.EventPublisher = c.InProcessEventBus
	default:
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
	}

	processorCfg := outbox.DefaultProcessorConfig()
	processorCfg.PollInterval = c.Config.OutboxPollInterval
	processorCfg.BatchSize = c.Config.OutboxBatchSize
	processorCfg.MaxRetries = c.Config.OutboxMaxRetries
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorCfg, c.Logger).
		WithMetrics(c.Metrics)
	return nil
}

func (c *Container) initSync(ctx context.Context, override []application.SourceConfig) error {
	sourceCfgs := override
	if sourceCfgs == nil {
		loaded, err := c.loadSources()
		if err != nil {
			return err
		}
		sourceCfgs = loaded
	}

	breaker := resilience.DefaultBreakerConfig()
	breaker.Enabled = c.Config.BreakerEnabled
	breaker.MaxRequests = uint32(max(c.Config.BreakerMaxRequests, 1))
	breaker.Interval = c.Config.BreakerInterval
	breaker.Timeout = c.Config.BreakerTimeout
	breaker.FailureThreshold = uint32(max(c.Config.BreakerFailureThreshold, 1))

	c.Registry = setup.NewRegistry(setup.ProviderConfig{
		GoogleClient: googleCal.OAuthConfig{
			ClientID:     c.Config.GoogleClientID,
			ClientSecret: c.Config.GoogleClientSecret,
		},
		Breaker: breaker,
		Metrics: c.Metrics,
		Logger:  c.Logger,
	})

	sources, err := c.Registry.BuildSources(ctx, sourceCfgs)
	if err != nil {
		// A misconfigured source is reported and skipped; the rest still sync.
		c.Logger.Warn("some sources could not be configured", "error", err)
	}
	c.Sources = sources

	c.Queue = application.NewQueue(c.Config.SyncQueueSize, c.Logger)
	c.SyncService = application.NewSyncService(
		c.Store,
		c.SyncStates,
		c.Generations,
		c.Queue,
		c.Calendar,
		c.Sources,
		application.SyncConfig{
			Policy:        application.ErrorPolicyFor(c.Config.AppEnv),
			MaxSyncErrors: c.Config.SyncMaxErrors,
		},
		c.Metrics,
		c.Logger,
	)

	c.ShadowSubscriber = subscribers.NewSeriesShadowSubscriber(c.SyncService, c.Logger)
	c.ShadowSubscriber.SetEnabled(c.Config.SyncShadowEvents)
	c.Consumers.Register(c.ShadowSubscriber)
	return nil
}

// loadSources reads the sources file. A missing file means no sources.
func (c *Container) loadSources() ([]application.SourceConfig, error) {
	entries, err := config.LoadSources(c.Config.SyncSourcesFile)
	if errors.Is(err, os.ErrNotExist) {
		c.Logger.Warn("sources file not found, no sources configured", "path", c.Config.SyncSourcesFile)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sourceCfgs, err := setup.SourceConfigs(entries)
	if err != nil {
		c.Logger.Warn("ignoring invalid sources", "error", err)
	}
	return sourceCfgs, nil
}

// FlushEvents drains the outbox into the in-process bus so that local
// subscribers see the events of a short-lived command. Brokered
// transports are left to the worker.
func (c *Container) FlushEvents(ctx context.Context) error {
	if c.InProcessEventBus == nil || c.OutboxProcessor == nil {
		return nil
	}
	n, err := c.OutboxProcessor.Drain(ctx)
	if n > 0 {
		c.Logger.Debug("flushed events", "count", n)
	}
	return err
}

// Close releases all resources. It is safe to call on a partially
// initialized container.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Close()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("failed to close database", "error", err)
		}
	}
}
