package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var (
	agendaDays     int
	agendaKind     string
	occurrenceKind string
	occurrenceDays int
)

var agendaCmd = &cobra.Command{
	Use:   "agenda [date]",
	Short: "Show events or reminders day by day",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		if agendaDays < 1 {
			return errors.New("--days must be at least 1")
		}
		from, err := parseDay(app, args)
		if err != nil {
			return err
		}
		kinds, err := parseKinds(agendaKind)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for day := from; day.Before(app.Calendar.AddDays(from, agendaDays)); day = app.Calendar.DayAfter(day) {
			fmt.Fprintln(out, day.Format("Monday, 2 January 2006"))
			empty := true
			for _, kind := range kinds {
				items, err := app.Syncer.Agenda(cmd.Context(), kind, day, app.Calendar.DayAfter(day))
				if err != nil {
					return err
				}
				for _, occ := range items {
					printOccurrence(out, app, occ)
					empty = false
				}
			}
			if empty {
				fmt.Fprintln(out, "  (nothing)")
			}
		}
		return nil
	},
}

var occurrenceCmd = &cobra.Command{
	Use:   "occurrence <series-id> [date]",
	Short: "Find the occurrence of a series within a range of days",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		if occurrenceDays < 1 {
			return errors.New("--days must be at least 1")
		}
		from, err := parseDay(app, args[1:])
		if err != nil {
			return err
		}
		to := app.Calendar.AddDays(from, occurrenceDays)

		find := app.Syncer.EventIn
		if strings.EqualFold(occurrenceKind, "reminder") {
			find = app.Syncer.ReminderIn
		}
		occ, err := find(cmd.Context(), args[0], from, to)
		if err != nil {
			return err
		}
		if occ == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s does not recur between %s and %s.\n",
				args[0], from.Format(dateLayout), to.Format(dateLayout))
			return nil
		}
		printOccurrence(cmd.OutOrStdout(), app, occ)
		return nil
	},
}

var shadowCmd = &cobra.Command{
	Use:   "shadow <series-id>",
	Short: "Mirror an event series as reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		series, err := app.Syncer.ShadowAsReminders(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reminder series %s mirrors %s.\n", series.ID(), series.Referencing())
		return nil
	},
}

func parseDay(app *App, args []string) (time.Time, error) {
	if len(args) == 0 || args[0] == "" || args[0] == "today" {
		return app.Calendar.StartOfDay(app.now()), nil
	}
	day, err := time.Parse(dateLayout, args[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
	}
	return app.Calendar.Date(day.Year(), day.Month(), day.Day()), nil
}

func parseKinds(s string) ([]domain.ItemKind, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return []domain.ItemKind{domain.KindEvent, domain.KindReminder}, nil
	case "event", "events":
		return []domain.ItemKind{domain.KindEvent}, nil
	case "reminder", "reminders":
		return []domain.ItemKind{domain.KindReminder}, nil
	}
	return nil, fmt.Errorf("invalid kind %q, expected event, reminder or all", s)
}

func printOccurrence(w io.Writer, app *App, occ *domain.Occurrence) {
	when := "all day"
	if !occ.AllDay() {
		when = app.Calendar.In(occ.Start()).Format("15:04") + "-" + app.Calendar.In(occ.End()).Format("15:04")
	}
	marker := ""
	if occ.Kind() == domain.KindReminder {
		marker = " [reminder]"
	}
	if occ.Status() == domain.StatusArchived {
		marker += " [cancelled]"
	}
	fmt.Fprintf(w, "  %-11s  %s%s\n", when, occ.Title(), marker)
}

func init() {
	agendaCmd.Flags().IntVarP(&agendaDays, "days", "d", 1, "number of days to show")
	agendaCmd.Flags().StringVarP(&agendaKind, "kind", "k", "all", "event, reminder or all")
	occurrenceCmd.Flags().StringVarP(&occurrenceKind, "kind", "k", "event", "event or reminder")
	occurrenceCmd.Flags().IntVarP(&occurrenceDays, "days", "d", 7, "number of days to search")
	rootCmd.AddCommand(agendaCmd)
	rootCmd.AddCommand(occurrenceCmd)
	rootCmd.AddCommand(shadowCmd)
}
