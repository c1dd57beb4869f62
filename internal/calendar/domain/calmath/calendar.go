// Package calmath provides calendar arithmetic over a timezone-aware
// Gregorian calendar. All operations are pure: the location and first
// weekday are injected through Calendar and nothing else is consulted.
package calmath

import "time"

// Calendar is a Gregorian calendar bound to a location and week start.
type Calendar struct {
	Location     *time.Location
	FirstWeekday time.Weekday
}

// New creates a calendar for the given location and first day of the week.
func New(loc *time.Location, firstWeekday time.Weekday) Calendar {
	return Calendar{Location: loc, FirstWeekday: firstWeekday}
}

// UTC returns a calendar in UTC whose weeks start on Monday.
func UTC() Calendar {
	return Calendar{Location: time.UTC, FirstWeekday: time.Monday}
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// In converts t to the calendar's location.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.loc())
}

// Date returns midnight of the given civil date. Out-of-range values are
// normalized the same way time.Date does.
func (c Calendar) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.loc())
}

// At returns the wall-clock time hour:minute on the day containing t.
func (c Calendar) At(t time.Time, hour, minute int) time.Time {
	y, m, d := c.In(t).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, c.loc())
}

// StartOfDay returns midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := c.In(t).Date()
	return c.Date(y, m, d)
}

// StartOfWeek returns midnight of the first day of the week containing t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	return c.AddDays(day, -c.weekdayOffset(day.Weekday()))
}

// StartOfMonth returns midnight of the first day of the month containing t.
func (c Calendar) StartOfMonth(t time.Time) time.Time {
	y, m, _ := c.In(t).Date()
	return c.Date(y, m, 1)
}

// StartOfYear returns midnight of January 1st of the year containing t.
func (c Calendar) StartOfYear(t time.Time) time.Time {
	return c.Date(c.In(t).Year(), time.January, 1)
}

// AddDays moves t by n civil days keeping its wall-clock time.
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	t = c.In(t)
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d+n, hh, mm, ss, t.Nanosecond(), c.loc())
}

// AddMonths returns midnight of the first day of the month n months after
// the month containing t.
func (c Calendar) AddMonths(t time.Time, n int) time.Time {
	y, m, _ := c.In(t).Date()
	return c.Date(y, m+time.Month(n), 1)
}

// DayAfter returns midnight of the day following t.
func (c Calendar) DayAfter(t time.Time) time.Time {
	return c.AddDays(c.StartOfDay(t), 1)
}

// DayBefore returns midnight of the day preceding t.
func (c Calendar) DayBefore(t time.Time) time.Time {
	return c.AddDays(c.StartOfDay(t), -1)
}

// SameDay reports whether a and b fall on the same civil date.
func (c Calendar) SameDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) == 0
}

// DaysBetween returns the number of civil days from a to b. The result only
// depends on the dates, so DaysBetween(a, b) == -DaysBetween(b, a).
func (c Calendar) DaysBetween(a, b time.Time) int {
	return c.ordinal(b) - c.ordinal(a)
}

// WeeksBetween returns the number of week boundaries from a to b.
func (c Calendar) WeeksBetween(a, b time.Time) int {
	return c.DaysBetween(c.StartOfWeek(a), c.StartOfWeek(b)) / 7
}

// MonthsBetween returns the number of month boundaries from a to b.
func (c Calendar) MonthsBetween(a, b time.Time) int {
	ya, ma, _ := c.In(a).Date()
	yb, mb, _ := c.In(b).Date()
	return (yb-ya)*12 + int(mb) - int(ma)
}

// YearsBetween returns the number of year boundaries from a to b.
func (c Calendar) YearsBetween(a, b time.Time) int {
	return c.In(b).Year() - c.In(a).Year()
}

// NextWeekday returns the first day on or after t that falls on w.
func (c Calendar) NextWeekday(t time.Time, w time.Weekday) time.Time {
	day := c.StartOfDay(t)
	delta := (int(w) - int(day.Weekday()) + 7) % 7
	return c.AddDays(day, delta)
}

// NextWeekdayAfter returns the first day strictly after t that falls on w.
func (c Calendar) NextWeekdayAfter(t time.Time, w time.Weekday) time.Time {
	return c.NextWeekday(c.DayAfter(t), w)
}

// WeekdaysInMonth returns every date with weekday w in the month of t.
func (c Calendar) WeekdaysInMonth(t time.Time, w time.Weekday) []time.Time {
	first := c.StartOfMonth(t)
	var days []time.Time
	for d := c.NextWeekday(first, w); d.Month() == first.Month(); d = c.AddDays(d, 7) {
		days = append(days, d)
	}
	return days
}

// WeekdaysInYear returns every date with weekday w in the year of t.
func (c Calendar) WeekdaysInYear(t time.Time, w time.Weekday) []time.Time {
	first := c.StartOfYear(t)
	days := make([]time.Time, 0, 53)
	for d := c.NextWeekday(first, w); d.Year() == first.Year(); d = c.AddDays(d, 7) {
		days = append(days, d)
	}
	return days
}

// DayOfYear returns the 1-based day of the year of t.
func (c Calendar) DayOfYear(t time.Time) int {
	return c.In(t).YearDay()
}

// DaysInMonth returns the number of days in the month containing t.
func (c Calendar) DaysInMonth(t time.Time) int {
	y, m, _ := c.In(t).Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysInYear returns 365 or 366 for the year containing t.
func (c Calendar) DaysInYear(t time.Time) int {
	y := c.In(t).Year()
	return time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// WeekOfYear returns the week number of t. Week 1 is the first week that
// has at least four days in the year, with weeks starting on FirstWeekday.
// Days before week 1 belong to the last week of the previous year and days
// after the final week belong to week 1 of the next year.
func (c Calendar) WeekOfYear(t time.Time) int {
	day := c.StartOfDay(t)
	year := day.Year()
	start := c.weekOneStart(year)
	if day.Before(start) {
		return c.weeksInYear(year - 1)
	}
	n := c.DaysBetween(start, day)/7 + 1
	if n > c.weeksInYear(year) {
		return 1
	}
	return n
}

// WeeksInYear returns 52 or 53 for the year containing t.
func (c Calendar) WeeksInYear(t time.Time) int {
	return c.weeksInYear(c.In(t).Year())
}

func (c Calendar) weeksInYear(year int) int {
	return c.DaysBetween(c.weekOneStart(year), c.weekOneStart(year+1)) / 7
}

func (c Calendar) weekOneStart(year int) time.Time {
	jan1 := c.Date(year, time.January, 1)
	offset := c.weekdayOffset(jan1.Weekday())
	if offset <= 3 {
		return c.AddDays(jan1, -offset)
	}
	return c.AddDays(jan1, 7-offset)
}

func (c Calendar) weekdayOffset(w time.Weekday) int {
	return (int(w) - int(c.FirstWeekday) + 7) % 7
}

// ordinal maps the civil date of t to a day count that is independent of
// daylight saving transitions.
func (c Calendar) ordinal(t time.Time) int {
	y, m, d := c.In(t).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
