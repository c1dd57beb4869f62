package application

import (
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain/calmath"
)

// Window is a date range enumerated during a sync pass.
type Window struct {
	Name string
	From time.Time
	To   time.Time
}

// Window bounds, in days relative to today.
const (
	nearFutureDays = 14
	recentPastDays = 30
	farYears       = 2
)

// SyncWindows returns the ranges of a pass in import order: the next two
// weeks, today, the past month, the far future and the far past. Near-term
// data lands first so an interrupted pass still leaves it in place.
func SyncWindows(cal calmath.Calendar, now time.Time) []Window {
	today := cal.StartOfDay(now)
	tomorrow := cal.DayAfter(today)
	nearFuture := cal.AddDays(today, nearFutureDays)
	recentPast := cal.AddDays(today, -recentPastDays)
	return []Window{
		{Name: "near_future", From: tomorrow, To: nearFuture},
		{Name: "today", From: today, To: tomorrow},
		{Name: "recent_past", From: recentPast, To: today},
		{Name: "far_future", From: nearFuture, To: cal.AddMonths(today, 12*farYears)},
		{Name: "far_past", From: cal.AddMonths(today, -12*farYears), To: recentPast},
	}
}
