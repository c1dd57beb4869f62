// Package rrule converts iCalendar RRULE text into calendar recurrences.
package rrule

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/teambition/rrule-go"
)

// ErrUnsupportedFrequency is returned for sub-daily rules.
var ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")

// Rule is a parsed RRULE: the recurrence plus its UNTIL bound, which is zero
// for open-ended and count-bounded rules.
type Rule struct {
	Recurrence domain.Recurrence
	Until      time.Time
}

// Parse converts the value of an RRULE property. A leading "RRULE:" is
// accepted.
func Parse(text string) (Rule, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "RRULE:")
	if text == "" {
		return Rule{}, fmt.Errorf("parse rrule: empty rule")
	}

	opt, err := rrule.StrToROption(text)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rrule %q: %w", text, err)
	}

	freq, err := frequency(opt.Freq)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rrule %q: %w", text, err)
	}

	rec := domain.Recurrence{
		Frequency:    freq,
		Interval:     opt.Interval,
		WeekStart:    weekday(opt.Wkst),
		Count:        opt.Count,
		DaysOfMonth:  slices.Clone(opt.Bymonthday),
		DaysOfYear:   slices.Clone(opt.Byyearday),
		WeeksOfYear:  slices.Clone(opt.Byweekno),
		MonthsOfYear: slices.Clone(opt.Bymonth),
		SetPositions: slices.Clone(opt.Bysetpos),
	}
	if rec.Interval < 1 {
		rec.Interval = 1
	}
	for _, wd := range opt.Byweekday {
		rec.DaysOfWeek = append(rec.DaysOfWeek, domain.DayOfWeek{Weekday: weekday(wd), Week: wd.N()})
	}
	if err := rec.Validate(); err != nil {
		return Rule{}, fmt.Errorf("parse rrule %q: %w", text, err)
	}

	return Rule{Recurrence: rec, Until: opt.Until}, nil
}

// Apply parses text and sets the recurrence fields of item.
func Apply(item *domain.RawItem, text string) error {
	rule, err := Parse(text)
	if err != nil {
		return err
	}
	item.Recurrence = &rule.Recurrence
	item.RecurrenceEnd = rule.Until
	return nil
}

// Format renders a recurrence back to RRULE text.
func Format(rec domain.Recurrence, until time.Time) (string, error) {
	opt := rrule.ROption{
		Interval:   rec.Interval,
		Wkst:       toWeekday(rec.WeekStart),
		Count:      rec.Count,
		Until:      until,
		Bymonthday: rec.DaysOfMonth,
		Byyearday:  rec.DaysOfYear,
		Byweekno:   rec.WeeksOfYear,
		Bymonth:    rec.MonthsOfYear,
		Bysetpos:   rec.SetPositions,
	}
	switch rec.Frequency {
	case domain.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case domain.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case domain.FrequencyYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", ErrUnsupportedFrequency
	}
	for _, d := range rec.DaysOfWeek {
		wd := toWeekday(d.Weekday)
		if d.Week != 0 {
			wd = wd.Nth(d.Week)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}
	return opt.RRuleString(), nil
}

func frequency(f rrule.Frequency) (domain.Frequency, error) {
	switch f {
	case rrule.DAILY:
		return domain.FrequencyDaily, nil
	case rrule.WEEKLY:
		return domain.FrequencyWeekly, nil
	case rrule.MONTHLY:
		return domain.FrequencyMonthly, nil
	case rrule.YEARLY:
		return domain.FrequencyYearly, nil
	default:
		return domain.FrequencyUnknown, fmt.Errorf("%w: %v", ErrUnsupportedFrequency, f)
	}
}

// rrule-go numbers weekdays from Monday.
func weekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toWeekday(d time.Weekday) rrule.Weekday {
	return weekdays[d%7]
}
