package schedule

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"ptsched/internal/log"
	"ptsched/internal/model"
	"ptsched/internal/weekcal"
)

// SlotGrid is the calendar-display projection: day label -> (hour, state)
// pairs sorted ascending by hour. It is derived and read-only; callers
// rebuild it whenever its inputs change, nothing is persisted here.
type SlotGrid map[string][]model.HourState

// BuildSlotGrid merges periodic (day-of-week keyed) and one-time (date
// keyed) schedule entries into a SlotGrid. When both kinds land on the same
// (day, hour) cell the recurring entry wins, matching how the service treats
// a one-time request inside an already-recurring slot.
func BuildSlotGrid(periodic []model.PeriodicSlot, onetime []model.OneTimeSlot) SlotGrid {
	cells := make(map[string]map[int]model.SlotState)

	set := func(day string, hour int, st model.SlotState) {
		if cells[day] == nil {
			cells[day] = make(map[int]model.SlotState)
		}
		if cells[day][hour] == model.SlotRecurring {
			return
		}
		cells[day][hour] = st
	}

	for _, s := range onetime {
		set(model.DayLabel(s.Date.Weekday()), s.Hour, model.SlotOnce)
	}
	for _, s := range periodic {
		set(model.DayLabel(s.Weekday), s.Hour, model.SlotRecurring)
	}

	grid := make(SlotGrid, len(cells))
	for day, hours := range cells {
		states := make([]model.HourState, 0, len(hours))
		for hour, st := range hours {
			states = append(states, model.HourState{Hour: hour, State: st})
		}
		sort.Slice(states, func(i, j int) bool { return states[i].Hour < states[j].Hour })
		grid[day] = states
	}
	return grid
}

// StateAt returns the state of one grid cell; absent cells are SlotNone.
func (g SlotGrid) StateAt(day string, hour int) model.SlotState {
	for _, hs := range g[day] {
		if hs.Hour == hour {
			return hs.State
		}
	}
	return model.SlotNone
}

// OccurrenceDates resolves a periodic slot to its concrete start times
// within the given (year, week) window, using the same weekly recurrence
// expansion the calendar export emits. A weekly slot yields exactly one
// occurrence per week; the rrule machinery keeps this consistent with the
// RRULEs written into the ICS feed.
func OccurrenceDates(slot model.PeriodicSlot, year, week int, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	start, end := weekcal.WeekDateRange(year, week)

	dtstart := time.Date(start.Year(), start.Month(), start.Day(), slot.Hour, 0, 0, 0, loc)
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtstart,
		Byweekday: rruleWeekday(slot.Weekday),
	})
	if err != nil {
		log.Error("occurrence rule build failed", err, "weekday", int(slot.Weekday), "hour", slot.Hour)
		return nil
	}

	rangeEnd := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	return r.Between(dtstart, rangeEnd, true)
}

func rruleWeekday(wd time.Weekday) []rrule.Weekday {
	switch wd {
	case time.Monday:
		return []rrule.Weekday{rrule.MO}
	case time.Tuesday:
		return []rrule.Weekday{rrule.TU}
	case time.Wednesday:
		return []rrule.Weekday{rrule.WE}
	case time.Thursday:
		return []rrule.Weekday{rrule.TH}
	case time.Friday:
		return []rrule.Weekday{rrule.FR}
	case time.Saturday:
		return []rrule.Weekday{rrule.SA}
	default:
		return []rrule.Weekday{rrule.SU}
	}
}
