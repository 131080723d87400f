// Package weekcal implements the week numbering used by the scheduling
// service. The week number is a simple day-count approximation,
// ceil((dayOfYear + startOfYearWeekday + 1) / 7), NOT strict ISO-8601.
// The backend assigns auto-scheduling results to (year, week) pairs computed
// this way, so the approximation must be preserved verbatim; substituting
// time.ISOWeek would disagree with the server around year boundaries.
package weekcal

import (
	"fmt"
	"time"
)

// YearAndWeek returns the calendar year and week-of-year for d.
//
// dayOfYear counts whole days elapsed since January 1 (January 1 -> 0) and
// startOfYearWeekday is the weekday index of January 1 with Sunday = 0.
// Pure function of its input; deterministic, no side effects.
func YearAndWeek(d time.Time) (year, week int) {
	year = d.Year()
	dayOfYear := d.YearDay() - 1

	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, d.Location())
	startWeekday := int(jan1.Weekday())

	week = ceilDiv(dayOfYear+startWeekday+1, 7)
	return year, week
}

// NextWeekYearAndWeek returns YearAndWeek of d shifted forward by 7 days.
func NextWeekYearAndWeek(d time.Time) (year, week int) {
	return YearAndWeek(d.AddDate(0, 0, 7))
}

// WeekDateRange returns the inclusive 7-day window for the given week.
// start is always a Monday, end the following Sunday: the window is anchored
// on the first Monday on or after January 1 of year and advanced by
// (week-1)*7 days.
func WeekDateRange(year, week int) (start, end time.Time) {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Days until the first Monday on/after January 1.
	delta := (int(time.Monday) - int(jan1.Weekday()) + 7) % 7
	firstMonday := jan1.AddDate(0, 0, delta)

	start = firstMonday.AddDate(0, 0, (week-1)*7)
	end = start.AddDate(0, 0, 6)
	return start, end
}

// FormatShortDate renders d as zero-padded "MM/DD".
func FormatShortDate(d time.Time) string {
	return fmt.Sprintf("%02d/%02d", int(d.Month()), d.Day())
}

// The predicates below classify a week number against the reference point,
// YearAndWeek(now). They are evaluated per call and never cached, so their
// value shifts as real time crosses a week boundary while the process runs.

// IsCurrentWeek reports whether week is the reference week at now.
func IsCurrentWeek(now time.Time, week int) bool {
	_, ref := YearAndWeek(now)
	return week == ref
}

// IsPastWeek reports whether week is before the reference week at now.
func IsPastWeek(now time.Time, week int) bool {
	_, ref := YearAndWeek(now)
	return week < ref
}

// IsNextWeek reports whether week immediately follows the reference week.
func IsNextWeek(now time.Time, week int) bool {
	_, ref := YearAndWeek(now)
	return week == ref+1
}

// IsEditable reports whether week may be edited at all. The current week is
// locked; past and future weeks are nominally editable, with action-level
// gating further restricting mutations to the next week.
func IsEditable(now time.Time, week int) bool {
	_, ref := YearAndWeek(now)
	return week != ref
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
