package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	calendarApp "github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/memory"
	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testItems() []domain.RawItem {
	modified := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	standup := domain.RawItem{
		ExternalID:   "standup",
		CleanID:      "standup",
		Kind:         domain.KindEvent,
		Title:        "Standup",
		Start:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
		CalendarID:   "work",
		Origin:       domain.OriginPersonal,
		LastModified: modified,
	}
	rec := domain.Weekly(1, time.Monday)
	standup.Recurrence = &rec

	dentist := domain.RawItem{
		ExternalID:   "dentist",
		CleanID:      "dentist",
		Kind:         domain.KindEvent,
		Title:        "Dentist",
		Start:        time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		CalendarID:   "work",
		Origin:       domain.OriginPersonal,
		LastModified: modified,
	}
	return []domain.RawItem{standup, dentist}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	queue := calendarApp.NewQueue(16, nil)
	t.Cleanup(queue.Close)

	cal := calmath.UTC()
	syncer := calendarApp.NewSyncService(
		memory.NewStore(),
		memory.NewSyncStateRepository(),
		calendarApp.NewLocalGenerations(),
		queue,
		cal,
		[]calendarApp.Source{
			{ID: "work", Type: domain.SourceICS, Provider: calendarApp.SliceProvider(testItems())},
		},
		calendarApp.SyncConfig{
			Policy: calendarApp.FailFast,
			Now:    func() time.Time { return testNow },
		},
		observability.NoopMetrics{},
		nil,
	)

	app := NewApp(syncer, cal, observability.NewHealthRegistry())
	app.Now = func() time.Time { return testNow }
	SetApp(app)
	t.Cleanup(func() { SetApp(nil) })
	return app
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestImportCommand(t *testing.T) {
	newTestApp(t)

	out, err := run(t, importCmd)
	require.NoError(t, err)

	assert.Contains(t, out, "Seen ")
	assert.Contains(t, out, "inserted:")
	assert.NotContains(t, out, "Dry run")
}

func TestImportCommand_DryRunBanner(t *testing.T) {
	app := newTestApp(t)
	app.DryRun = true

	out, err := run(t, importCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run: nothing was written.")
}

func TestCatchUpCommand(t *testing.T) {
	newTestApp(t)

	_, err := run(t, importCmd)
	require.NoError(t, err)

	out, err := run(t, catchUpCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Seen 0 items")
}

func TestAgendaCommand(t *testing.T) {
	newTestApp(t)
	_, err := run(t, importCmd)
	require.NoError(t, err)

	agendaDays, agendaKind = 3, "event"
	t.Cleanup(func() { agendaDays, agendaKind = 1, "all" })

	out, err := run(t, agendaCmd, "2026-03-02")
	require.NoError(t, err)

	assert.Contains(t, out, "Monday, 2 March 2026")
	assert.Contains(t, out, "09:00-09:15  Standup")
	assert.Contains(t, out, "Tuesday, 3 March 2026\n  (nothing)")
	assert.Contains(t, out, "14:00-15:00  Dentist")
}

func TestAgendaCommand_InvalidInput(t *testing.T) {
	newTestApp(t)

	_, err := run(t, agendaCmd, "March 2nd")
	assert.ErrorContains(t, err, "invalid date")

	agendaKind = "todo"
	t.Cleanup(func() { agendaKind = "all" })
	_, err = run(t, agendaCmd)
	assert.ErrorContains(t, err, "invalid kind")
}

func TestOccurrenceCommand(t *testing.T) {
	newTestApp(t)
	_, err := run(t, importCmd)
	require.NoError(t, err)

	out, err := run(t, occurrenceCmd, "standup", "2026-03-10")
	require.NoError(t, err)
	assert.Contains(t, out, "09:00-09:15  Standup")

	occurrenceDays = 3
	t.Cleanup(func() { occurrenceDays = 7 })
	out, err = run(t, occurrenceCmd, "standup", "2026-03-10")
	require.NoError(t, err)
	assert.Contains(t, out, "standup does not recur between 2026-03-10 and 2026-03-13.")
}

func TestOccurrenceCommand_UnknownSeries(t *testing.T) {
	newTestApp(t)

	_, err := run(t, occurrenceCmd, "missing")
	assert.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func TestShadowCommand(t *testing.T) {
	newTestApp(t)
	_, err := run(t, importCmd)
	require.NoError(t, err)

	out, err := run(t, shadowCmd, "standup")
	require.NoError(t, err)
	assert.Equal(t, "Reminder series standup-reminder mirrors standup.\n", out)

	agendaKind = "reminder"
	t.Cleanup(func() { agendaKind = "all" })
	out, err = run(t, agendaCmd, "2026-03-09")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup [reminder]")
}

func TestResetCommand(t *testing.T) {
	newTestApp(t)
	_, err := run(t, importCmd)
	require.NoError(t, err)

	_, err = run(t, resetCmd)
	assert.ErrorContains(t, err, "--force")

	resetForce = true
	t.Cleanup(func() { resetForce = false })
	out, err := run(t, resetCmd)
	require.NoError(t, err)
	assert.Equal(t, "Store cleared.\n", out)

	out, err = run(t, agendaCmd, "2026-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, "(nothing)")
}

func TestSourcesCommand(t *testing.T) {
	newTestApp(t)

	out, err := run(t, sourcesCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "ID    TYPE")
	assert.Contains(t, out, "work  ics")
}

func TestHealthCommand(t *testing.T) {
	app := newTestApp(t)
	app.Health.Register("database", observability.DatabaseHealthChecker(func(context.Context) error { return nil }))

	out, err := run(t, healthCmd)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"healthy"`)
}

func TestCommandsWithoutApp(t *testing.T) {
	SetApp(nil)

	for _, cmd := range []*cobra.Command{importCmd, catchUpCmd, resetCmd, agendaCmd, sourcesCmd, healthCmd} {
		_, err := run(t, cmd)
		assert.ErrorIs(t, err, ErrAppNotInitialized, cmd.Name())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "almanac dev")
	assert.Equal(t, "true", versionCmd.Annotations[skipAppAnnotation])
}

func TestEnsureApp(t *testing.T) {
	SetApp(nil)
	t.Cleanup(func() {
		SetApp(nil)
		SetLoader(nil)
		dryRun, envFile = false, ""
	})

	var got LoadOptions
	calls := 0
	SetLoader(func(ctx context.Context, opts LoadOptions) (*App, error) {
		calls++
		got = opts
		return &App{}, nil
	})
	dryRun, envFile = true, "test.env"

	require.NoError(t, ensureApp(context.Background()))
	require.NoError(t, ensureApp(context.Background()))

	assert.Equal(t, 1, calls)
	assert.Equal(t, LoadOptions{EnvFile: "test.env", DryRun: true}, got)
	assert.NotNil(t, GetApp())
}

func TestEnsureApp_LoaderError(t *testing.T) {
	SetApp(nil)
	t.Cleanup(func() { SetLoader(nil) })

	SetLoader(func(ctx context.Context, opts LoadOptions) (*App, error) {
		return nil, errors.New("no database")
	})

	assert.EqualError(t, ensureApp(context.Background()), "no database")
	assert.Nil(t, GetApp())
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		input string
		want  []domain.ItemKind
	}{
		{"", []domain.ItemKind{domain.KindEvent, domain.KindReminder}},
		{"all", []domain.ItemKind{domain.KindEvent, domain.KindReminder}},
		{"events", []domain.ItemKind{domain.KindEvent}},
		{"Reminder", []domain.ItemKind{domain.KindReminder}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseKinds(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
