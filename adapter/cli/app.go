package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	calendarApp "github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// ErrAppNotInitialized is returned when a command runs without an app.
var ErrAppNotInitialized = errors.New("app not initialized")

// Syncer is the sync engine as the CLI sees it.
type Syncer interface {
	Sources() []calendarApp.Source
	ImportAll(ctx context.Context) (*calendarApp.Report, error)
	CatchUp(ctx context.Context) (*calendarApp.Report, error)
	Reset(ctx context.Context) error
	EventIn(ctx context.Context, seriesID string, from, to time.Time) (*domain.Occurrence, error)
	ReminderIn(ctx context.Context, seriesID string, from, to time.Time) (*domain.Occurrence, error)
	Agenda(ctx context.Context, kind domain.ItemKind, from, to time.Time) ([]*domain.Occurrence, error)
	ShadowAsReminders(ctx context.Context, seriesID string) (*domain.Series, error)
}

// App holds the CLI application dependencies.
type App struct {
	Syncer   Syncer
	Calendar calmath.Calendar
	Health   *observability.HealthRegistry
	// DryRun is set when changes are kept in memory.
	DryRun bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewApp creates a new CLI application.
func NewApp(syncer Syncer, cal calmath.Calendar, health *observability.HealthRegistry) *App {
	return &App{
		Syncer:   syncer,
		Calendar: cal,
		Health:   health,
		Now:      time.Now,
	}
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// LoadOptions carries the global flags to the loader.
type LoadOptions struct {
	EnvFile string
	DryRun  bool
	Verbose bool
}

// Loader builds the application once flags are parsed.
type Loader func(ctx context.Context, opts LoadOptions) (*App, error)

var (
	app    *App
	loader Loader
	loadMu sync.Mutex
)

// SetApp sets the global app instance.
func SetApp(a *App) {
	loadMu.Lock()
	defer loadMu.Unlock()
	app = a
}

// GetApp returns the global app instance.
func GetApp() *App {
	loadMu.Lock()
	defer loadMu.Unlock()
	return app
}

// SetLoader sets the function that builds the app on first use.
func SetLoader(l Loader) {
	loadMu.Lock()
	defer loadMu.Unlock()
	loader = l
}

func ensureApp(ctx context.Context) error {
	loadMu.Lock()
	defer loadMu.Unlock()
	if app != nil || loader == nil {
		return nil
	}
	a, err := loader(ctx, LoadOptions{EnvFile: envFile, DryRun: dryRun, Verbose: verbose})
	if err != nil {
		return err
	}
	app = a
	return nil
}

func requireApp() (*App, error) {
	a := GetApp()
	if a == nil || a.Syncer == nil {
		return nil, ErrAppNotInitialized
	}
	return a, nil
}
