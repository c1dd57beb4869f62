package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/almanac/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
	dryRun  bool
	logger  *slog.Logger
)

// skipAppAnnotation marks commands that run without the application.
const skipAppAnnotation = "almanac/skip-app"

type commandContext struct {
	startedAt time.Time
}

type commandContextKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "almanac",
	Short: "Almanac - recurring calendar sync",
	Long: `Almanac imports events and reminders from Google, iCloud, CalDAV and
iCalendar feeds into one store, keeps recurring series in step with their
sources, and materializes occurrences on demand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = observability.NewCommandContext(ctx, cmd.Name())
		ctx = context.WithValue(ctx, commandContextKey{}, commandContext{startedAt: time.Now()})
		cmd.SetContext(ctx)

		logger.InfoContext(ctx, "command start",
			"command", cmd.CommandPath(),
			"dry_run", dryRun,
		)

		if cmd.Annotations[skipAppAnnotation] == "" {
			return ensureApp(ctx)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.InfoContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "env file to load before the environment (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "keep all changes in memory")
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}
