package schedule

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsched/internal/model"
)

func TestBuildSlotGrid_SortedByHour(t *testing.T) {
	grid := BuildSlotGrid(
		[]model.PeriodicSlot{
			{Weekday: time.Monday, Hour: 19},
			{Weekday: time.Monday, Hour: 7},
		},
		[]model.OneTimeSlot{
			{Date: time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), Hour: 12}, // a Monday
		},
	)

	mon := grid["MON"]
	require.Len(t, mon, 3)
	assert.True(t, sort.SliceIsSorted(mon, func(i, j int) bool { return mon[i].Hour < mon[j].Hour }))
	assert.Equal(t, []model.HourState{
		{Hour: 7, State: model.SlotRecurring},
		{Hour: 12, State: model.SlotOnce},
		{Hour: 19, State: model.SlotRecurring},
	}, mon)
}

func TestBuildSlotGrid_RecurringWinsOverOnce(t *testing.T) {
	grid := BuildSlotGrid(
		[]model.PeriodicSlot{{Weekday: time.Wednesday, Hour: 9}},
		[]model.OneTimeSlot{{Date: time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), Hour: 9}}, // a Wednesday
	)

	assert.Equal(t, model.SlotRecurring, grid.StateAt("WED", 9))
}

func TestSlotGrid_StateAtAbsentCellIsNone(t *testing.T) {
	grid := BuildSlotGrid(nil, nil)
	assert.Equal(t, model.SlotNone, grid.StateAt("FRI", 6))
}

func TestOccurrenceDates_OnePerWeek(t *testing.T) {
	slot := model.PeriodicSlot{Weekday: time.Wednesday, Hour: 10}

	// Week 11 of 2024 runs Mon 2024-03-11 .. Sun 2024-03-17.
	dates := OccurrenceDates(slot, 2024, 11, time.UTC)

	require.Len(t, dates, 1)
	assert.Equal(t, time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC), dates[0])
}

func TestOccurrenceDates_MondaySlotIsWeekStart(t *testing.T) {
	slot := model.PeriodicSlot{Weekday: time.Monday, Hour: 6}

	dates := OccurrenceDates(slot, 2024, 11, time.UTC)

	require.Len(t, dates, 1)
	assert.Equal(t, time.Date(2024, time.March, 11, 6, 0, 0, 0, time.UTC), dates[0])
}
