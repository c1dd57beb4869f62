package domain

import (
	"slices"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// scanYears bounds day-by-day scans: a rule that stays silent for this many
// years times its interval is treated as exhausted.
const scanYears = 8

// Rule evaluates a Recurrence on calendar days within an active range.
// Evaluation never mutates the rule.
type Rule struct {
	recurrence Recurrence
	cal        calmath.Calendar
	anchor     time.Time
	first      time.Time
	end        time.Time
	lastDay    time.Time
}

// NewRule binds a recurrence to a calendar and the active range
// [start, end). A zero end leaves the range open.
func NewRule(cal calmath.Calendar, rec Recurrence, start, end time.Time) Rule {
	return Rule{
		recurrence: rec,
		cal:        cal,
		anchor:     cal.In(start),
		first:      cal.StartOfDay(start),
		end:        end,
	}
}

// WithLastRecurrenceDay returns a copy of the rule that never fires after day.
func (r Rule) WithLastRecurrenceDay(day time.Time) Rule {
	if !day.IsZero() {
		day = r.cal.StartOfDay(day)
	}
	r.lastDay = day
	return r
}

func (r Rule) Recurrence() Recurrence     { return r.recurrence }
func (r Rule) Calendar() calmath.Calendar { return r.cal }
func (r Rule) FirstDay() time.Time        { return r.first }
func (r Rule) End() time.Time             { return r.end }
func (r Rule) LastDay() time.Time         { return r.lastDay }

// Recurs reports whether the rule fires on the day containing day.
func (r Rule) Recurs(day time.Time) bool {
	d := r.cal.StartOfDay(day)
	if !r.inRange(d) {
		return false
	}
	if !r.lastDay.IsZero() && d.After(r.lastDay) {
		return false
	}
	return r.matches(d)
}

// RecursIgnoringRange is Recurs without the active range and count bounds.
func (r Rule) RecursIgnoringRange(day time.Time) bool {
	return r.matches(r.cal.StartOfDay(day))
}

func (r Rule) inRange(d time.Time) bool {
	if d.Before(r.first) {
		return false
	}
	return r.end.IsZero() || d.Before(r.end)
}

func (r Rule) matches(d time.Time) bool {
	if !r.onActivePeriod(d) || !r.matchesConstraints(d) {
		return false
	}
	if len(r.recurrence.SetPositions) > 0 {
		return r.matchesSetPosition(d)
	}
	return true
}

func (r Rule) weekCalendar() calmath.Calendar {
	return calmath.New(r.cal.Location, r.recurrence.WeekStart)
}

func (r Rule) onActivePeriod(d time.Time) bool {
	n := r.recurrence.interval()
	switch r.recurrence.Frequency {
	case FrequencyDaily:
		return floorMod(r.cal.DaysBetween(r.first, d), n) == 0
	case FrequencyWeekly:
		return floorMod(r.weekCalendar().WeeksBetween(r.first, d), n) == 0
	case FrequencyMonthly:
		return floorMod(r.cal.MonthsBetween(r.first, d), n) == 0
	case FrequencyYearly:
		return floorMod(r.cal.YearsBetween(r.first, d), n) == 0
	default:
		return false
	}
}

// matchesConstraints checks every constraint set except set positions.
func (r Rule) matchesConstraints(d time.Time) bool {
	rec := r.recurrence
	if len(rec.MonthsOfYear) > 0 && !slices.Contains(rec.MonthsOfYear, int(d.Month())) {
		return false
	}
	if len(rec.WeeksOfYear) > 0 {
		wc := r.weekCalendar()
		if !containsSigned(rec.WeeksOfYear, wc.WeekOfYear(d), wc.WeeksInYear(d)) {
			return false
		}
	}
	if len(rec.DaysOfYear) > 0 && !containsSigned(rec.DaysOfYear, r.cal.DayOfYear(d), r.cal.DaysInYear(d)) {
		return false
	}
	if len(rec.DaysOfMonth) > 0 && !containsSigned(rec.DaysOfMonth, d.Day(), r.cal.DaysInMonth(d)) {
		return false
	}
	if len(rec.DaysOfWeek) > 0 && !r.matchesDayOfWeek(d) {
		return false
	}
	return r.matchesAnchor(d)
}

// matchesAnchor applies the start date as the implicit constraint when the
// rule does not narrow the period down by itself.
func (r Rule) matchesAnchor(d time.Time) bool {
	rec := r.recurrence
	switch rec.Frequency {
	case FrequencyWeekly:
		if len(rec.DaysOfWeek) == 0 {
			return d.Weekday() == r.anchor.Weekday()
		}
	case FrequencyMonthly:
		if len(rec.DaysOfWeek) == 0 && len(rec.DaysOfMonth) == 0 && len(rec.DaysOfYear) == 0 {
			return d.Day() == r.anchor.Day()
		}
	case FrequencyYearly:
		if len(rec.DaysOfWeek) > 0 || len(rec.DaysOfMonth) > 0 || len(rec.DaysOfYear) > 0 {
			return true
		}
		if len(rec.WeeksOfYear) > 0 {
			return d.Weekday() == r.anchor.Weekday()
		}
		if len(rec.MonthsOfYear) > 0 {
			return d.Day() == r.anchor.Day()
		}
		return d.Month() == r.anchor.Month() && d.Day() == r.anchor.Day()
	}
	return true
}

func (r Rule) matchesDayOfWeek(d time.Time) bool {
	ordinals := r.recurrence.Frequency == FrequencyMonthly || r.recurrence.Frequency == FrequencyYearly
	for _, dw := range r.recurrence.DaysOfWeek {
		if dw.Weekday != d.Weekday() {
			continue
		}
		if dw.Week == 0 || !ordinals {
			return true
		}
		pos, neg := r.weekdayOrdinal(d)
		if dw.Week == pos || dw.Week == neg {
			return true
		}
	}
	return false
}

// weekdayOrdinal returns the position of d among the same weekdays of its
// month (monthly rules, or yearly rules narrowed to months) or of its year,
// counted from the start and from the end.
func (r Rule) weekdayOrdinal(d time.Time) (int, int) {
	if r.recurrence.Frequency == FrequencyMonthly || len(r.recurrence.MonthsOfYear) > 0 {
		dim := r.cal.DaysInMonth(d)
		return (d.Day()-1)/7 + 1, -((dim-d.Day())/7 + 1)
	}
	doy := r.cal.DayOfYear(d)
	diy := r.cal.DaysInYear(d)
	return (doy-1)/7 + 1, -((diy-doy)/7 + 1)
}

func (r Rule) matchesSetPosition(d time.Time) bool {
	from := r.periodStart(d)
	to := r.advancePeriod(from, 1)
	index, total := -1, 0
	for c := from; c.Before(to); c = r.cal.AddDays(c, 1) {
		if !r.matchesConstraints(c) {
			continue
		}
		if r.cal.SameDay(c, d) {
			index = total
		}
		total++
	}
	if index < 0 {
		return false
	}
	for _, p := range r.recurrence.SetPositions {
		if (p > 0 && p-1 == index) || (p < 0 && total+p == index) {
			return true
		}
	}
	return false
}

func (r Rule) periodStart(d time.Time) time.Time {
	switch r.recurrence.Frequency {
	case FrequencyWeekly:
		return r.weekCalendar().StartOfWeek(d)
	case FrequencyMonthly:
		return r.cal.StartOfMonth(d)
	case FrequencyYearly:
		return r.cal.StartOfYear(d)
	default:
		return r.cal.StartOfDay(d)
	}
}

func (r Rule) advancePeriod(p time.Time, k int) time.Time {
	switch r.recurrence.Frequency {
	case FrequencyWeekly:
		return r.cal.AddDays(p, 7*k)
	case FrequencyMonthly:
		return r.cal.AddMonths(p, k)
	case FrequencyYearly:
		return r.cal.Date(p.Year()+k, time.January, 1)
	default:
		return r.cal.AddDays(p, k)
	}
}

func (r Rule) horizonDays() int {
	return 366 * scanYears * r.recurrence.interval()
}

// LastRecurrenceDay returns the day of the final occurrence of a
// count-bounded rule, or the zero time when the rule is not count-bounded.
// Rules with a fixed number of occurrences per period skip whole periods
// arithmetically and walk only the remainder; all others walk period by
// period.
func (r Rule) LastRecurrenceDay() (time.Time, error) {
	if err := r.recurrence.Validate(); err != nil {
		return time.Time{}, err
	}
	count := r.recurrence.Count
	if count <= 0 {
		return time.Time{}, nil
	}
	if perPeriod, ok := r.fixedPerPeriod(); ok && r.end.IsZero() {
		return r.lastDayAnalytic(count, perPeriod)
	}
	return r.lastDayByWalking(count), nil
}

// fixedPerPeriod reports how many times the rule fires in every full
// period, when that number does not depend on the period.
func (r Rule) fixedPerPeriod() (int, bool) {
	rec := r.recurrence
	if len(rec.SetPositions) > 0 || len(rec.WeeksOfYear) > 0 || len(rec.DaysOfYear) > 0 {
		return 0, false
	}
	switch rec.Frequency {
	case FrequencyDaily:
		if len(rec.MonthsOfYear) == 0 && len(rec.DaysOfMonth) == 0 && len(rec.DaysOfWeek) == 0 {
			return 1, true
		}
	case FrequencyWeekly:
		if len(rec.MonthsOfYear) > 0 || len(rec.DaysOfMonth) > 0 {
			return 0, false
		}
		if len(rec.DaysOfWeek) == 0 {
			return 1, true
		}
		seen := make(map[time.Weekday]struct{}, len(rec.DaysOfWeek))
		for _, dw := range rec.DaysOfWeek {
			seen[dw.Weekday] = struct{}{}
		}
		return len(seen), true
	case FrequencyMonthly:
		if len(rec.MonthsOfYear) > 0 || len(rec.DaysOfWeek) > 0 {
			return 0, false
		}
		if len(rec.DaysOfMonth) == 0 {
			return 1, r.anchor.Day() <= 28
		}
		seen := make(map[int]struct{}, len(rec.DaysOfMonth))
		for _, day := range rec.DaysOfMonth {
			if day < 1 || day > 28 {
				return 0, false
			}
			seen[day] = struct{}{}
		}
		return len(seen), true
	case FrequencyYearly:
		if len(rec.MonthsOfYear) == 0 && len(rec.DaysOfWeek) == 0 && len(rec.DaysOfMonth) == 0 {
			leapDay := r.anchor.Month() == time.February && r.anchor.Day() == 29
			return 1, !leapDay
		}
	}
	return 0, false
}

func (r Rule) lastDayAnalytic(count, perPeriod int) (time.Time, error) {
	step := r.recurrence.interval()
	p := r.periodStart(r.first)
	found, nth, _ := r.walkPeriod(p, count)
	if !nth.IsZero() {
		return nth, nil
	}
	remaining := count - found
	skip := (remaining - 1) / perPeriod
	p = r.advancePeriod(p, step*(1+skip))
	remaining -= skip * perPeriod
	if _, nth, _ = r.walkPeriod(p, remaining); nth.IsZero() {
		return time.Time{}, ErrImpossibleDate
	}
	return nth, nil
}

func (r Rule) lastDayByWalking(count int) time.Time {
	step := r.recurrence.interval()
	remaining := count
	var last time.Time
	silentSince := r.first
	for p := r.periodStart(r.first); ; p = r.advancePeriod(p, step) {
		if !r.end.IsZero() && !p.Before(r.end) {
			return last
		}
		if r.cal.DaysBetween(silentSince, p) > r.horizonDays() {
			return last
		}
		found, nth, lastInPeriod := r.walkPeriod(p, remaining)
		if !nth.IsZero() {
			return nth
		}
		if found > 0 {
			remaining -= found
			last = lastInPeriod
			silentSince = lastInPeriod
		}
	}
}

// walkPeriod scans the days of the period starting at p and returns the
// number of occurrences found, the day of the n-th one if reached, and the
// last occurrence seen.
func (r Rule) walkPeriod(p time.Time, n int) (int, time.Time, time.Time) {
	end := r.advancePeriod(p, 1)
	found := 0
	var last time.Time
	for d := p; d.Before(end); d = r.cal.AddDays(d, 1) {
		if d.Before(r.first) {
			continue
		}
		if !r.end.IsZero() && !d.Before(r.end) {
			break
		}
		if !r.matches(d) {
			continue
		}
		found++
		last = d
		if found == n {
			return found, d, last
		}
	}
	return found, time.Time{}, last
}

// NextRecurringDate returns the first day strictly after the day of after on
// which the rule fires.
func (r Rule) NextRecurringDate(after time.Time) (time.Time, bool) {
	d := r.cal.DayAfter(after)
	if d.Before(r.first) {
		d = r.first
	}
	for i := 0; i < r.horizonDays(); i++ {
		if !r.end.IsZero() && !d.Before(r.end) {
			return time.Time{}, false
		}
		if !r.lastDay.IsZero() && d.After(r.lastDay) {
			return time.Time{}, false
		}
		if r.matches(d) {
			return d, true
		}
		d = r.cal.AddDays(d, 1)
	}
	return time.Time{}, false
}

// PreviousRecurringDate returns the last day strictly before the day of
// before on which the rule fires.
func (r Rule) PreviousRecurringDate(before time.Time) (time.Time, bool) {
	d := r.cal.DayBefore(before)
	if !r.end.IsZero() && !d.Before(r.end) {
		d = r.cal.DayBefore(r.end)
	}
	if !r.lastDay.IsZero() && d.After(r.lastDay) {
		d = r.lastDay
	}
	for i := 0; i < r.horizonDays() && !d.Before(r.first); i++ {
		if r.matches(d) {
			return d, true
		}
		d = r.cal.AddDays(d, -1)
	}
	return time.Time{}, false
}

func containsSigned(set []int, value, total int) bool {
	return slices.Contains(set, value) || slices.Contains(set, value-total-1)
}

func floorMod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
