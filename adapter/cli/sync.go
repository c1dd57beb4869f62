package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	calendarApp "github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/spf13/cobra"
)

var resetForce bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import every item from every source",
	Long: `Import walks each configured source across the past, near and future
sync windows and merges what it finds into the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		report, err := app.Syncer.ImportAll(cmd.Context())
		if report != nil {
			printReport(cmd.OutOrStdout(), report, app.DryRun)
		}
		return err
	},
}

var catchUpCmd = &cobra.Command{
	Use:   "catch-up",
	Short: "Import what changed since the last pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		report, err := app.Syncer.CatchUp(cmd.Context())
		if report != nil {
			printReport(cmd.OutOrStdout(), report, app.DryRun)
		}
		return err
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Cancel passes in flight and clear the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		if !resetForce && !app.DryRun {
			return errors.New("reset deletes every stored series and occurrence; pass --force to confirm")
		}
		if err := app.Syncer.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Store cleared.")
		return nil
	},
}

func printReport(w io.Writer, report *calendarApp.Report, dryRun bool) {
	if dryRun {
		fmt.Fprintln(w, "Dry run: nothing was written.")
	}
	fmt.Fprintf(w, "Seen %d items in %s\n", report.Seen, report.Duration.Round(1e6))
	fmt.Fprintf(w, "  inserted:  %d\n", report.Inserted)
	fmt.Fprintf(w, "  merged:    %d\n", report.Merged)
	fmt.Fprintf(w, "  detached:  %d\n", report.Detached)
	fmt.Fprintf(w, "  unchanged: %d\n", report.Unchanged)
	if report.Invalid > 0 {
		fmt.Fprintf(w, "  invalid:   %d\n", report.Invalid)
	}
	if report.Failed > 0 {
		fmt.Fprintf(w, "  failed:    %d\n", report.Failed)
	}
	if report.Cancelled > 0 {
		fmt.Fprintf(w, "  cancelled: %d\n", report.Cancelled)
	}
	for _, id := range report.SkippedSources {
		fmt.Fprintf(w, "Skipped source %s\n", id)
	}
	failed := make([]string, 0, len(report.FailedSources))
	for id := range report.FailedSources {
		failed = append(failed, id)
	}
	slices.Sort(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "Source %s failed: %v\n", id, report.FailedSources[id])
	}
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "confirm the reset")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(catchUpCmd)
	rootCmd.AddCommand(resetCmd)
}
