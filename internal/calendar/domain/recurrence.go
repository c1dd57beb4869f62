package domain

import (
	"slices"
	"time"
)

// Frequency is the base period of a recurrence rule.
type Frequency int

const (
	FrequencyUnknown Frequency = iota
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
	FrequencyYearly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyYearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// DayOfWeek is a weekday with an optional ordinal inside the period, so
// {Tuesday, 2} is the second Tuesday and {Friday, -1} the last Friday.
// Week zero matches every occurrence of the weekday.
type DayOfWeek struct {
	Weekday time.Weekday
	Week    int
}

// Recurrence is a recurrence rule. Constraint sets are combined with AND;
// an empty set places no constraint. Negative day and week numbers count
// from the end of their period. An Interval of 0 means 1.
type Recurrence struct {
	Frequency    Frequency
	Interval     int
	WeekStart    time.Weekday
	Count        int
	DaysOfWeek   []DayOfWeek
	DaysOfMonth  []int
	DaysOfYear   []int
	WeeksOfYear  []int
	MonthsOfYear []int
	SetPositions []int
}

// Validate rejects rules that indicate a broken configuration.
func (r Recurrence) Validate() error {
	if r.Interval < 0 {
		return ErrInvalidInterval
	}
	if r.Count > MaxRecurrenceCount {
		return ErrUnreasonableCount
	}
	return nil
}

// IsCountBounded reports whether the rule stops after a number of occurrences.
func (r Recurrence) IsCountBounded() bool {
	return r.Count > 0
}

func (r Recurrence) interval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// Clone returns a deep copy of the rule.
func (r Recurrence) Clone() Recurrence {
	c := r
	c.DaysOfWeek = slices.Clone(r.DaysOfWeek)
	c.DaysOfMonth = slices.Clone(r.DaysOfMonth)
	c.DaysOfYear = slices.Clone(r.DaysOfYear)
	c.WeeksOfYear = slices.Clone(r.WeeksOfYear)
	c.MonthsOfYear = slices.Clone(r.MonthsOfYear)
	c.SetPositions = slices.Clone(r.SetPositions)
	return c
}

// Equal compares two rules field by field.
func (r Recurrence) Equal(o Recurrence) bool {
	return r.Frequency == o.Frequency &&
		r.interval() == o.interval() &&
		r.WeekStart == o.WeekStart &&
		r.Count == o.Count &&
		slices.Equal(r.DaysOfWeek, o.DaysOfWeek) &&
		slices.Equal(r.DaysOfMonth, o.DaysOfMonth) &&
		slices.Equal(r.DaysOfYear, o.DaysOfYear) &&
		slices.Equal(r.WeeksOfYear, o.WeeksOfYear) &&
		slices.Equal(r.MonthsOfYear, o.MonthsOfYear) &&
		slices.Equal(r.SetPositions, o.SetPositions)
}

// Daily returns a rule firing every interval days.
func Daily(interval int) Recurrence {
	return Recurrence{Frequency: FrequencyDaily, Interval: interval, WeekStart: time.Monday}
}

// Weekly returns a rule firing every interval weeks on the given weekdays.
func Weekly(interval int, days ...time.Weekday) Recurrence {
	r := Recurrence{Frequency: FrequencyWeekly, Interval: interval, WeekStart: time.Monday}
	for _, d := range days {
		r.DaysOfWeek = append(r.DaysOfWeek, DayOfWeek{Weekday: d})
	}
	return r
}
