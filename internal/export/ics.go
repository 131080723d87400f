// Package export builds an ICS feed of a week's training sessions. The
// original client pushed confirmed sessions into members' calendars through
// vendor SDKs; exposing a standard ICS feed covers the same need for any
// subscribing calendar application.
package export

import (
	"bytes"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"ptsched/internal/model"
	"ptsched/internal/schedule"
	"ptsched/internal/weekcal"
)

const (
	prodID = "-//ptsched//training schedule//EN"

	// sessionDuration is the fixed length of a training session. The
	// scheduling service models sessions as whole-hour slots.
	sessionDuration = time.Hour
)

// dayOffsets maps board day labels onto offsets from the week's Monday;
// model.DayLabels is already Monday-first.
var dayOffsets = func() map[string]int {
	m := make(map[string]int, len(model.DayLabels))
	for i, label := range model.DayLabels {
		m[label] = i
	}
	return m
}()

// WeekCalendar renders the sessions of (year, week) as an ICS calendar in
// the given timezone. Sessions whose day label is unknown are skipped.
func WeekCalendar(year, week int, sessions []model.Session, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}
	start, _ := weekcal.WeekDateRange(year, week)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetName(fmt.Sprintf("Training week %d/%d", week, year))

	for _, s := range sessions {
		offset, ok := dayOffsets[s.Day]
		if !ok {
			continue
		}
		date := start.AddDate(0, 0, offset)
		begin := time.Date(date.Year(), date.Month(), date.Day(), s.Hour, 0, 0, 0, loc)

		ev := cal.AddEvent(sessionUID(year, week, s))
		ev.SetDtStampTime(time.Now().UTC())
		ev.SetStartAt(begin)
		ev.SetEndAt(begin.Add(sessionDuration))
		ev.SetSummary(fmt.Sprintf("Training: %s", s.MemberName))
		ev.SetDescription(fmt.Sprintf("Member %s (%s), %s %02d:00", s.MemberName, s.MemberID, s.Day, s.Hour))
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return "", fmt.Errorf("export: serialize calendar: %w", err)
	}
	return buf.String(), nil
}

// RecurringCalendar renders periodic slots as weekly-recurring events
// anchored in (year, week). The concrete anchor date for each slot comes
// from the same rrule expansion the slot grid uses, and the emitted RRULE
// keeps the recurrence alive for subscribers.
func RecurringCalendar(year, week int, slots []model.PeriodicSlot, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetName(fmt.Sprintf("Recurring training slots (anchor week %d/%d)", week, year))

	for _, slot := range slots {
		dates := schedule.OccurrenceDates(slot, year, week, loc)
		if len(dates) == 0 {
			continue
		}
		begin := dates[0]

		uid := fmt.Sprintf("recurring-%d-%02d@ptsched", int(slot.Weekday), slot.Hour)
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(time.Now().UTC())
		ev.SetStartAt(begin)
		ev.SetEndAt(begin.Add(sessionDuration))
		ev.SetSummary(fmt.Sprintf("Recurring training slot %02d:00", slot.Hour))
		ev.AddRrule(fmt.Sprintf("FREQ=WEEKLY;BYDAY=%s", icalByDay(slot.Weekday)))
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return "", fmt.Errorf("export: serialize recurring calendar: %w", err)
	}
	return buf.String(), nil
}

func sessionUID(year, week int, s model.Session) string {
	if s.ResultLineID != nil {
		return fmt.Sprintf("line-%d@ptsched", *s.ResultLineID)
	}
	return fmt.Sprintf("session-%d-%d-%s-%02d-%s@ptsched", year, week, s.Day, s.Hour, s.MemberID)
}

func icalByDay(wd time.Weekday) string {
	switch wd {
	case time.Monday:
		return "MO"
	case time.Tuesday:
		return "TU"
	case time.Wednesday:
		return "WE"
	case time.Thursday:
		return "TH"
	case time.Friday:
		return "FR"
	case time.Saturday:
		return "SA"
	default:
		return "SU"
	}
}
