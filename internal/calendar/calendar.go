// Package calendar holds the month-grid and availability arithmetic behind the
// booking page. Everything here is pure: no clocks, no I/O.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// GridCells is the fixed size of a month view: 6 rows of 7 days.
const GridCells = 42

// WeekdayOrder lists weekdays in column order, Monday first.
var WeekdayOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// Day is one cell of a month grid.
type Day struct {
	Date    time.Time `json:"date"`
	InMonth bool      `json:"in_month"`
}

// Dated is anything that falls on a calendar date.
type Dated interface {
	CalendarDate() time.Time
}

// MondayIndex maps time.Weekday (Sunday=0) to a Monday-first column (Monday=0..Sunday=6).
func MondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// WeekdayName is the English name of a Monday-first column, or "" when out of range.
func WeekdayName(column int) string {
	if column < 0 || column >= len(WeekdayOrder) {
		return ""
	}
	return WeekdayOrder[column].String()
}

// MonthGrid lays out month on a Monday-first 6x7 grid. Cells before the 1st
// carry the previous month's trailing days, cells after the last day the next
// month's leading days.
func MonthGrid(year int, month time.Month) [GridCells]Day {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -MondayIndex(first.Weekday()))
	// Normalized month, in case the caller passed an out-of-range one.
	_, inMonth, _ := first.Date()

	var grid [GridCells]Day
	for i := range grid {
		d := start.AddDate(0, 0, i)
		grid[i] = Day{Date: d, InMonth: d.Month() == inMonth}
	}
	return grid
}

// SameDay compares calendar dates only. Each value is read in its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// BookingsForDay keeps the items whose calendar date equals date.
func BookingsForDay[T Dated](items []T, date time.Time) []T {
	out := make([]T, 0)
	for _, it := range items {
		if SameDay(it.CalendarDate(), date) {
			out = append(out, it)
		}
	}
	return out
}

// SlotAdmissible reports whether slot on date is bookable: the weekday must be
// one of daysOfWeek and slot must literally be one of timeSlots.
func SlotAdmissible(daysOfWeek, timeSlots []string, date time.Time, slot string) bool {
	dayOK := false
	for _, name := range daysOfWeek {
		if w, err := ParseWeekday(name); err == nil && w == date.Weekday() {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	for _, s := range timeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// ParseWeekday accepts full or three-letter English names, any case.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, w := range WeekdayOrder {
		full := strings.ToLower(w.String())
		if n == full || n == full[:3] {
			return w, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}

var slotLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// ParseSlot reads a slot label such as "10:00 AM" or "14:30" into hour and minute.
func ParseSlot(slot string) (hour, minute int, err error) {
	s := strings.ToUpper(strings.TrimSpace(slot))
	for _, layout := range slotLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognized time slot %q", slot)
}

// AppointmentTime places slot on date's calendar day in loc.
func AppointmentTime(date time.Time, slot string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}
