package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// ErrorPolicy decides what a pass does when an import fails to write.
type ErrorPolicy int

const (
	// SurfaceAndSkip logs the failure, counts it and continues the pass.
	SurfaceAndSkip ErrorPolicy = iota
	// FailFast aborts the pass and returns the failure.
	FailFast
)

func (p ErrorPolicy) String() string {
	if p == FailFast {
		return "fail_fast"
	}
	return "surface_and_skip"
}

// ErrorPolicyFor returns FailFast for development environments and
// SurfaceAndSkip otherwise.
func ErrorPolicyFor(env string) ErrorPolicy {
	switch env {
	case "development", "dev", "local", "test":
		return FailFast
	default:
		return SurfaceAndSkip
	}
}

// ReminderSeriesSuffix is appended to an event series id to form the id of
// the reminder series shadowing it.
const ReminderSeriesSuffix = "-reminder"

// SyncConfig configures a SyncService.
type SyncConfig struct {
	Policy ErrorPolicy
	// MaxSyncErrors is the number of consecutive failures after which
	// CatchUp skips a source. Zero never skips.
	MaxSyncErrors int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Report summarizes a sync pass. Its fields are safe to read once the
// pass has returned.
type Report struct {
	mu sync.Mutex

	Seen      int
	Inserted  int
	Merged    int
	Detached  int
	Unchanged int
	Cancelled int
	Invalid   int
	Failed    int

	SkippedSources []string
	FailedSources  map[string]error
	Duration       time.Duration

	err error
}

func newReport() *Report {
	return &Report{FailedSources: make(map[string]error)}
}

// Err returns the error that aborted the pass, if any.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Report) count(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case OutcomeInserted:
		r.Inserted++
	case OutcomeMerged:
		r.Merged++
	case OutcomeDetached:
		r.Detached++
	case OutcomeCancelled:
		r.Cancelled++
	default:
		r.Unchanged++
	}
}

func (r *Report) seen() {
	r.mu.Lock()
	r.Seen++
	r.mu.Unlock()
}

func (r *Report) invalid() {
	r.mu.Lock()
	r.Invalid++
	r.mu.Unlock()
}

func (r *Report) failed() {
	r.mu.Lock()
	r.Failed++
	r.mu.Unlock()
}

func (r *Report) abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *Report) aborted() bool {
	return r.Err() != nil
}

// SyncService runs sync passes over the configured sources. Every write
// goes through its queue, so imports, materialization and resets never
// interleave.
type SyncService struct {
	store        Store
	syncStates   domain.SyncStateRepository
	generations  GenerationSource
	queue        *Queue
	engine       *Engine
	materializer *Materializer
	cal          calmath.Calendar
	sources      []Source
	config       SyncConfig
	metrics      observability.Metrics
	logger       *slog.Logger
}

// NewSyncService creates a sync service.
func NewSyncService(
	store Store,
	syncStates domain.SyncStateRepository,
	generations GenerationSource,
	queue *Queue,
	cal calmath.Calendar,
	sources []Source,
	config SyncConfig,
	metrics observability.Metrics,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SyncService{
		store:        store,
		syncStates:   syncStates,
		generations:  generations,
		queue:        queue,
		engine:       NewEngine(cal, logger),
		materializer: NewMaterializer(cal, logger),
		cal:          cal,
		sources:      sources,
		config:       config,
		metrics:      metrics,
		logger:       logger,
	}
}

// Sources returns the configured sources.
func (s *SyncService) Sources() []Source {
	return slices.Clone(s.sources)
}

// ImportAll imports every item of every source across all sync windows.
func (s *SyncService) ImportAll(ctx context.Context) (*Report, error) {
	return s.pass(ctx, false)
}

// CatchUp imports the items each source changed since its last successful
// pass. Sources that keep failing are skipped.
func (s *SyncService) CatchUp(ctx context.Context) (*Report, error) {
	return s.pass(ctx, true)
}

func (s *SyncService) pass(ctx context.Context, catchUp bool) (*Report, error) {
	mode := "import_all"
	if catchUp {
		mode = "catch_up"
	}
	started := time.Now()

	token, err := NewToken(ctx, s.generations)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation: %w", err)
	}

	report := newReport()
	startedAt := s.config.Now()
	windows := SyncWindows(s.cal, startedAt)

	for _, src := range s.sources {
		if err := s.syncSource(ctx, token, src, windows, startedAt, catchUp, report); err != nil {
			return report, err
		}
		if report.aborted() {
			break
		}
	}
	if err := s.queue.Wait(ctx); err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	s.metrics.Timing(observability.MetricPassDuration, report.Duration, observability.T("mode", mode))
	s.logger.Info("sync pass completed",
		"mode", mode,
		"generation", token.Generation(),
		"seen", report.Seen,
		"inserted", report.Inserted,
		"merged", report.Merged,
		"detached", report.Detached,
		"invalid", report.Invalid,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, report.Err()
}

func (s *SyncService) syncSource(
	ctx context.Context,
	token Token,
	src Source,
	windows []Window,
	startedAt time.Time,
	catchUp bool,
	report *Report,
) error {
	ctx = observability.WithSource(ctx, src.ID)
	state, err := s.syncStates.FindBySource(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("failed to load sync state for %s: %w", src.ID, err)
	}
	if state == nil {
		state = domain.NewSyncState(src.ID, src.Type)
	}
	if catchUp && !state.ShouldRetry(s.config.MaxSyncErrors) {
		s.logger.WarnContext(ctx, "skipping failing source",
			"source_id", src.ID,
			"sync_errors", state.SyncErrors(),
			"last_error", state.LastError(),
		)
		report.SkippedSources = append(report.SkippedSources, src.ID)
		return nil
	}

	query := ItemQuery{}
	if catchUp {
		query.ModifiedAfter = state.ModifiedAfter()
	}

	seen := 0
	var enumErr error
enumeration:
	for _, w := range windows {
		query.From, query.To = w.From, w.To
		for raw, err := range src.Provider.Items(ctx, query) {
			if err != nil {
				enumErr = err
				break enumeration
			}
			seen++
			report.seen()
			if err := s.queue.Submit(ctx, s.importJob(token, src, raw, report)); err != nil {
				return err
			}
			if report.aborted() {
				break enumeration
			}
		}
	}
	if err := s.queue.Wait(ctx); err != nil {
		return err
	}

	if cancelled, err := token.Cancelled(ctx); err != nil || cancelled {
		return err
	}
	switch {
	case enumErr != nil:
		s.logger.WarnContext(ctx, "source enumeration failed",
			"source_id", src.ID,
			"source_type", src.Type,
			"error", enumErr,
		)
		s.metrics.Counter(observability.MetricSourceFailures, 1, observability.T("source", src.ID))
		report.FailedSources[src.ID] = enumErr
		state.MarkSyncFailure(enumErr.Error())
	case report.aborted():
		return nil
	default:
		state.MarkSyncSuccess(startedAt, state.Cursor(), seen)
	}
	if err := s.syncStates.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save sync state for %s: %w", src.ID, err)
	}
	return nil
}

func (s *SyncService) importJob(token Token, src Source, raw domain.RawItem, report *Report) Job {
	return func(ctx context.Context) error {
		if report.aborted() {
			return nil
		}
		var outcome Outcome
		err := s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			var err error
			outcome, err = s.engine.Import(ctx, tx, token, raw)
			return err
		})
		s.settle(src, raw, outcome, err, report)
		return nil
	}
}

// settle applies the error policy to the result of one import.
func (s *SyncService) settle(src Source, raw domain.RawItem, outcome Outcome, err error, report *Report) {
	switch {
	case err == nil:
		report.count(outcome)
		s.metrics.Counter(observability.MetricImportItems, 1, observability.T("outcome", outcome.String()))
	case errors.Is(err, domain.ErrInvalidRawItem):
		s.logger.Warn("skipping invalid item",
			"source_id", src.ID,
			"external_id", raw.ExternalID,
			"error", err,
		)
		report.invalid()
		s.metrics.Counter(observability.MetricImportInvalid, 1)
	case domain.IsConfigurationError(err):
		s.logger.Error("configuration error, aborting pass",
			"source_id", src.ID,
			"external_id", raw.ExternalID,
			"error", err,
		)
		report.abort(err)
	case s.config.Policy == FailFast:
		report.abort(fmt.Errorf("import of %s failed: %w", raw.ExternalID, err))
	default:
		s.logger.Error("import failed, skipping item",
			"source_id", src.ID,
			"external_id", raw.ExternalID,
			"error", err,
		)
		report.failed()
		s.metrics.Counter(observability.MetricImportFailures, 1)
	}
}

// Import applies a single raw item on the queue and waits for it.
func (s *SyncService) Import(ctx context.Context, raw domain.RawItem) (Outcome, error) {
	token, err := NewToken(ctx, s.generations)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to read generation: %w", err)
	}
	var outcome Outcome
	err = s.queue.Do(ctx, func(ctx context.Context) error {
		return s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			var err error
			outcome, err = s.engine.Import(ctx, tx, token, raw)
			return err
		})
	})
	return outcome, err
}

// Reset invalidates every pass in flight, then clears the store and the
// sync states. Queued imports from older passes find their token
// cancelled and leave the store alone.
func (s *SyncService) Reset(ctx context.Context) error {
	generation, err := s.generations.Advance(ctx)
	if err != nil {
		return fmt.Errorf("failed to advance generation: %w", err)
	}
	err = s.queue.Do(ctx, func(ctx context.Context) error {
		if err := s.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		return s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			return record(tx, domain.NewStoreResetEvent(generation))
		})
	})
	if err != nil {
		return err
	}
	if err := s.syncStates.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to forget sync states: %w", err)
	}
	s.logger.Info("store reset", "generation", generation)
	return nil
}

// EventIn returns the event of a series within [from, to), materializing
// it on first access. It returns nil when the series does not recur there.
func (s *SyncService) EventIn(ctx context.Context, seriesID string, from, to time.Time) (*domain.Occurrence, error) {
	return s.occurrenceIn(ctx, seriesID, domain.KindEvent, from, to)
}

// ReminderIn is EventIn for reminders.
func (s *SyncService) ReminderIn(ctx context.Context, seriesID string, from, to time.Time) (*domain.Occurrence, error) {
	return s.occurrenceIn(ctx, seriesID, domain.KindReminder, from, to)
}

func (s *SyncService) occurrenceIn(ctx context.Context, seriesID string, kind domain.ItemKind, from, to time.Time) (*domain.Occurrence, error) {
	var occ *domain.Occurrence
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		return s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			series, err := tx.Series().FindByID(ctx, seriesID)
			if err != nil {
				return fmt.Errorf("failed to find series %s: %w", seriesID, err)
			}
			if series == nil {
				return fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, seriesID)
			}
			occ, err = s.materializer.Materialize(ctx, tx, series, kind, from, to)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return occ, nil
}

// Agenda returns every occurrence of kind within [from, to): stored
// standalone and detached occurrences plus the materialized occurrences of
// every active series. The result is ordered by start.
func (s *SyncService) Agenda(ctx context.Context, kind domain.ItemKind, from, to time.Time) ([]*domain.Occurrence, error) {
	var agenda []*domain.Occurrence
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		return s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			stored, err := Occurrences(tx, kind).FindInRange(ctx, from, to)
			if err != nil {
				return fmt.Errorf("failed to find occurrences: %w", err)
			}
			seen := make(map[string]bool, len(stored))
			for _, occ := range stored {
				seen[occ.ID()] = true
				agenda = append(agenda, occ)
			}

			all, err := tx.Series().FindAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to find series: %w", err)
			}
			for _, series := range all {
				if series.Kind() != kind || series.Status() != domain.StatusActive {
					continue
				}
				for day := s.cal.StartOfDay(from); day.Before(to); day = s.cal.DayAfter(day) {
					occ, err := s.materializer.Materialize(ctx, tx, series, kind, maxTime(day, from), minTime(s.cal.DayAfter(day), to))
					if err != nil {
						return err
					}
					if occ != nil && !seen[occ.ID()] {
						seen[occ.ID()] = true
						agenda = append(agenda, occ)
						s.metrics.Counter(observability.MetricOccurrencesMaterialized, 1)
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(agenda, func(a, b *domain.Occurrence) int {
		if c := a.Start().Compare(b.Start()); c != 0 {
			return c
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return agenda, nil
}

// ShadowAsReminders creates the reminder series that mirrors an event
// series, or returns it when it already exists.
func (s *SyncService) ShadowAsReminders(ctx context.Context, seriesID string) (*domain.Series, error) {
	var shadow *domain.Series
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		return s.store.Write(ctx, nil, func(ctx context.Context, tx Tx) error {
			series, err := tx.Series().FindByID(ctx, seriesID)
			if err != nil {
				return fmt.Errorf("failed to find series %s: %w", seriesID, err)
			}
			if series == nil {
				return fmt.Errorf("%w: %s", domain.ErrSeriesNotFound, seriesID)
			}

			id := seriesID + ReminderSeriesSuffix
			existing, err := tx.Series().FindByID(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to find series %s: %w", id, err)
			}
			if existing != nil {
				shadow = existing
				return nil
			}

			shadow = series.CloneAs(id, domain.KindReminder)
			if err := tx.Series().Save(ctx, shadow); err != nil {
				return fmt.Errorf("failed to save series %s: %w", id, err)
			}
			return record(tx, domain.NewSeriesCreatedEvent(shadow))
		})
	})
	if err != nil {
		return nil, err
	}
	return shadow, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
