package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a catch-up pass every five minutes.
const DefaultSchedule = "@every 5m"

const passOperation = "catch-up"

// CatchUpper runs an incremental sync pass.
type CatchUpper interface {
	CatchUp(ctx context.Context) (*application.Report, error)
}

// CatchUpWorkerConfig configures the catch-up worker.
type CatchUpWorkerConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 5m".
	Schedule string
	// Location interprets the schedule. Defaults to time.Local.
	Location *time.Location
	// RunOnStart runs a pass as soon as the worker starts.
	RunOnStart bool
	// Metrics receives the duration and outcome of every pass. Optional.
	Metrics observability.Metrics
}

// DefaultCatchUpWorkerConfig returns the default configuration.
func DefaultCatchUpWorkerConfig() CatchUpWorkerConfig {
	return CatchUpWorkerConfig{
		Schedule:   DefaultSchedule,
		Location:   time.Local,
		RunOnStart: true,
	}
}

// CatchUpWorker runs catch-up passes on a cron schedule. A pass that is
// still running when the next one is due makes the scheduler skip it.
type CatchUpWorker struct {
	syncer   CatchUpper
	config   CatchUpWorkerConfig
	logger   *slog.Logger
	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	mu    sync.Mutex
	stats CatchUpStats
}

// CatchUpStats describes the passes the worker has run.
type CatchUpStats struct {
	Runs    int
	LastRun time.Time
	LastErr error
}

// NewCatchUpWorker creates a catch-up worker.
func NewCatchUpWorker(syncer CatchUpper, config CatchUpWorkerConfig, logger *slog.Logger) *CatchUpWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &CatchUpWorker{
		syncer: syncer,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Run schedules catch-up passes and blocks until ctx is cancelled or Stop
// is called. It returns an error when the schedule does not parse.
func (w *CatchUpWorker) Run(ctx context.Context) error {
	if w.syncer == nil {
		w.logger.Warn("sync service not configured, catch-up worker will not start")
		return nil
	}

	cronLogger := slogCronLogger{logger: w.logger}
	scheduler := cron.New(
		cron.WithLocation(w.config.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := scheduler.AddFunc(w.config.Schedule, func() { w.runPass(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", w.config.Schedule, err)
	}

	w.running.Store(true)
	w.logger.Info("catch-up worker started", "schedule", w.config.Schedule)

	if w.config.RunOnStart {
		w.runPass(ctx)
	}
	scheduler.Start()

	var err error
	select {
	case <-ctx.Done():
		w.logger.Info("catch-up worker stopped (context cancelled)")
		err = ctx.Err()
	case <-w.stopCh:
		w.logger.Info("catch-up worker stopped (stop signal)")
	}

	// Wait for a pass in flight to finish.
	<-scheduler.Stop().Done()
	w.running.Store(false)
	return err
}

// Stop signals the worker to stop gracefully.
func (w *CatchUpWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// IsRunning returns true if the worker is currently running.
func (w *CatchUpWorker) IsRunning() bool {
	return w.running.Load()
}

// Stats returns the worker's pass statistics.
func (w *CatchUpWorker) Stats() CatchUpStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *CatchUpWorker) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx = observability.NewCommandContext(ctx, passOperation)
	w.logger.DebugContext(ctx, "starting catch-up pass")

	var report *application.Report
	err := observability.TimeOperation(ctx, w.logger, w.config.Metrics, passOperation, func() error {
		var err error
		report, err = w.syncer.CatchUp(ctx)
		return err
	})

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	w.stats.LastErr = err
	w.mu.Unlock()

	if err != nil {
		return
	}
	if report != nil {
		for source, sourceErr := range report.FailedSources {
			w.logger.WarnContext(ctx, "source failed during catch-up", "source", source, "error", sourceErr)
		}
	}
}

// slogCronLogger routes the scheduler's logging through slog.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
