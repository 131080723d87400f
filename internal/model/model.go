// Package model holds the central data shapes shared across the client:
// training sessions, per-week schedule status, and the recurring/one-time
// slot inputs used by the calendar projection.
package model

import "time"

// Session represents one occurrence of a trainer-member training slot within
// a week, as returned by the scheduling service. Session lists are replaced
// wholesale when a week is re-fetched.
type Session struct {
	// MemberID identifies the member attending this session.
	MemberID string `json:"member_id"`
	// MemberName is the member's display name.
	MemberName string `json:"member_name"`
	// MemberPhone is the member's contact number.
	MemberPhone string `json:"member_phone"`

	// TrainerID identifies the trainer running the session.
	TrainerID string `json:"trainer_id"`

	// Hour is the hour-of-day the session starts, 0-23.
	Hour int `json:"hour"`
	// Day is the day label within the week (e.g. "MON").
	Day string `json:"day"`
	// Week is the week-of-year the session belongs to (1-53).
	Week int `json:"week"`

	// ResultLineID is the server-assigned identifier of this session's line
	// within an auto-scheduling result. It is nil until the slot has been
	// materialized server-side; a session without it cannot be cancelled.
	ResultLineID *int64 `json:"result_line_id,omitempty"`
}

// Cancellable reports whether the session carries the result-line identifier
// required by a cancellation request.
func (s Session) Cancellable() bool {
	return s.ResultLineID != nil
}

// WeekStatus is the scheduling state of a single week.
type WeekStatus string

const (
	// StatusPlaceholder marks a reset/uninitialized week.
	StatusPlaceholder WeekStatus = "PLACEHOLDER"
	// StatusPending marks a week still being negotiated.
	StatusPending WeekStatus = "PENDING"
	// StatusFixed marks a confirmed week; affected members have been notified.
	StatusFixed WeekStatus = "FIXED"
)

// Valid reports whether s is one of the known week states.
func (s WeekStatus) Valid() bool {
	switch s {
	case StatusPlaceholder, StatusPending, StatusFixed:
		return true
	}
	return false
}

// SlotState classifies one hour cell in the weekly calendar view.
type SlotState string

const (
	SlotNone      SlotState = "none"
	SlotOnce      SlotState = "once"
	SlotRecurring SlotState = "recurring"
)

// PeriodicSlot is a recurring weekly schedule entry, keyed by day-of-week.
type PeriodicSlot struct {
	Weekday time.Weekday `json:"weekday"`
	Hour    int          `json:"hour"`
}

// OneTimeSlot is a single dated schedule entry.
type OneTimeSlot struct {
	Date time.Time `json:"date"`
	Hour int       `json:"hour"`
}

// HourState is one (hour, state) pair in the slot grid projection.
type HourState struct {
	Hour  int       `json:"hour"`
	State SlotState `json:"state"`
}

// DayLabels is the fixed ordering of day labels used by the week board,
// Monday first to match the week date range.
var DayLabels = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// LabelWeekday maps a board label back to its time.Weekday. The second
// return is false for labels outside DayLabels.
func LabelWeekday(label string) (time.Weekday, bool) {
	for i, l := range DayLabels {
		if l == label {
			// DayLabels is Monday-first; time.Weekday is Sunday-based.
			return time.Weekday((i + 1) % 7), true
		}
	}
	return time.Sunday, false
}

// DayLabel maps a time.Weekday to its board label.
func DayLabel(wd time.Weekday) string {
	switch wd {
	case time.Monday:
		return "MON"
	case time.Tuesday:
		return "TUE"
	case time.Wednesday:
		return "WED"
	case time.Thursday:
		return "THU"
	case time.Friday:
		return "FRI"
	case time.Saturday:
		return "SAT"
	default:
		return "SUN"
	}
}
