package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/almanac/internal/app"
	"github.com/felixgeelhaar/almanac/internal/calendar/application/workers"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/almanac/pkg/config"
	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// workerQueueName is the durable RabbitMQ queue the worker consumes.
const workerQueueName = "almanac.worker"

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "almanac-worker", os.Stdout, false)
	logger.Info("starting almanac worker", "env", cfg.AppEnv)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	container, err := app.NewContainer(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	// Outbox processor
	if cfg.OutboxProcessorEnabled {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			logger.Error("failed to start outbox processor", "error", err)
			os.Exit(1)
		}
		go cleanupOutbox(ctx, container, logger)
		go logOutboxStats(ctx, container, logger)
	} else {
		logger.Info("outbox processor disabled")
	}

	// Event consumers
	if err := startConsumers(ctx, container, logger); err != nil {
		logger.Error("failed to start event consumers", "error", err)
		os.Exit(1)
	}

	// Scheduled catch-up passes
	workerCfg := workers.DefaultCatchUpWorkerConfig()
	workerCfg.Schedule = cfg.SyncSchedule
	workerCfg.Location = container.Calendar.Location
	workerCfg.Metrics = container.Metrics
	catchUp := workers.NewCatchUpWorker(container.SyncService, workerCfg, logger)
	container.Health.Register("sync", observability.SyncPassHealthChecker(func() (time.Time, error) {
		stats := catchUp.Stats()
		return stats.LastRun, stats.LastErr
	}, 0))

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- catchUp.Run(ctx)
	}()

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, cfg.WorkerHealthAddr, container, catchUp, logger)
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case err := <-workerErr:
		if err != nil {
			logger.Error("catch-up worker failed", "error", err)
		}
		cancel()
	}
	logger.Info("shutting down worker")

	catchUp.Stop()
	container.OutboxProcessor.Stop()
	logger.Info("worker stopped")
}

// startConsumers subscribes the registered subscribers to the configured
// transport. The in-process bus needs no consumer: the outbox processor
// dispatches to it directly.
func startConsumers(ctx context.Context, c *app.Container, logger *slog.Logger) error {
	switch c.Config.EventTransport {
	case config.TransportRabbitMQ:
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:       c.Config.RabbitMQURL,
			QueueName: workerQueueName,
			Exchange:  eventbus.ExchangeName,
			Logger:    logger,
		}, c.Consumers)
		if err != nil {
			if c.Config.IsDevelopment() {
				logger.Warn("RabbitMQ consumer not available, events are not consumed", "error", err)
				return nil
			}
			return err
		}
		go runConsumer(ctx, "rabbitmq", consumer.Start, consumer.Close, logger)
	case config.TransportNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = c.Config.NATSURL
		consumer, err := eventbus.NewNATSConsumer(natsCfg, c.Consumers, logger)
		if err != nil {
			if c.Config.IsDevelopment() {
				logger.Warn("NATS consumer not available, events are not consumed", "error", err)
				return nil
			}
			return err
		}
		go runConsumer(ctx, "nats", consumer.Start, consumer.Close, logger)
	}
	return nil
}

func runConsumer(ctx context.Context, name string, start func(context.Context) error, closeFn func() error, logger *slog.Logger) {
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("failed to close consumer", "transport", name, "error", err)
		}
	}()
	if err := start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("event consumer stopped", "transport", name, "error", err)
	}
}

func cleanupOutbox(ctx context.Context, c *app.Container, logger *slog.Logger) {
	ticker := time.NewTicker(c.Config.OutboxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := c.OutboxRepo.DeleteOld(ctx, c.Config.OutboxRetentionDays)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", c.Config.OutboxRetentionDays)
			}
		}
	}
}

func logOutboxStats(ctx context.Context, c *app.Container, logger *slog.Logger) {
	ticker := time.NewTicker(c.Config.OutboxStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.OutboxProcessor.GetStats()
			backlog, err := c.OutboxRepo.Backlog(ctx)
			if err != nil {
				logger.Warn("failed to read outbox backlog", "error", err)
			}
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"pending", backlog.Pending,
				"dead_lettered", backlog.Dead,
				"lag_seconds", stats.LagSeconds,
				"last_error", stats.LastError,
			)
		}
	}
}

func startHealthServer(ctx context.Context, addr string, c *app.Container, catchUp *workers.CatchUpWorker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		outboxStats := c.OutboxProcessor.GetStats()
		syncStats := catchUp.Stats()
		response := map[string]any{
			"status": "ok",
			"outbox": map[string]any{
				"running":           outboxStats.IsRunning,
				"published":         outboxStats.PublishedCount,
				"failed":            outboxStats.FailedCount,
				"dead":              outboxStats.DeadCount,
				"last_processed_at": outboxStats.LastProcessedAt,
				"last_error":        outboxStats.LastError,
			},
			"sync": map[string]any{
				"running":  catchUp.IsRunning(),
				"passes":   syncStats.Runs,
				"last_run": syncStats.LastRun,
				"sources":  len(c.Sources),
			},
		}
		if syncStats.LastErr != nil {
			response["sync"].(map[string]any)["last_error"] = syncStats.LastErr.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		health := c.Health.GetOverallHealth(checkCtx)
		data, err := health.ToJSON()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(data)
	})

	healthSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", addr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
