package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dated time.Time

func (d dated) CalendarDate() time.Time { return time.Time(d) }

func TestMonthGridAlwaysHas42CellsAndAnchorsTheFirst(t *testing.T) {
	for year := 2023; year <= 2025; year++ {
		for month := time.January; month <= time.December; month++ {
			grid := MonthGrid(year, month)
			require.Len(t, grid, GridCells)

			first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			col := MondayIndex(first.Weekday())
			assert.Equal(t, first, grid[col].Date, "%d-%02d", year, month)
			assert.True(t, grid[col].InMonth)

			for i := 1; i < GridCells; i++ {
				assert.Equal(t, grid[i-1].Date.AddDate(0, 0, 1), grid[i].Date)
			}
			assert.Equal(t, time.Monday, grid[0].Date.Weekday())
		}
	}
}

func TestMonthGridJune2024(t *testing.T) {
	// June 1st 2024 is a Saturday: five trailing May days lead the grid.
	grid := MonthGrid(2024, time.June)

	assert.Equal(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), grid[0].Date)
	assert.False(t, grid[4].InMonth)
	assert.Equal(t, 1, grid[5].Date.Day())
	assert.True(t, grid[5].InMonth)

	inMonth := 0
	for _, d := range grid {
		if d.InMonth {
			inMonth++
		}
	}
	assert.Equal(t, 30, inMonth)
	assert.Equal(t, time.July, grid[GridCells-1].Date.Month())
}

func TestMondayIndex(t *testing.T) {
	assert.Equal(t, 0, MondayIndex(time.Monday))
	assert.Equal(t, 5, MondayIndex(time.Saturday))
	assert.Equal(t, 6, MondayIndex(time.Sunday))
}

func TestBookingsForDayMatchesCalendarDateOnly(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	items := []dated{
		dated(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)),
		dated(time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)),
		dated(time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)),
		dated(time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)),
	}

	got := BookingsForDay(items, day)
	assert.Len(t, got, 2)
	assert.Empty(t, BookingsForDay([]dated{}, day))
}

func TestSlotAdmissible(t *testing.T) {
	days := []string{"Monday", "wed"}
	slots := []string{"9:00 AM", "10:00 AM"}
	monday := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)
	wednesday := monday.AddDate(0, 0, 2)

	assert.True(t, SlotAdmissible(days, slots, monday, "10:00 AM"))
	assert.True(t, SlotAdmissible(days, slots, wednesday, "9:00 AM"))
	assert.False(t, SlotAdmissible(days, slots, tuesday, "10:00 AM"), "weekday not configured")
	assert.False(t, SlotAdmissible(days, slots, monday, "10:00"), "no time parsing, exact label only")
	assert.False(t, SlotAdmissible(days, slots, monday, "10:30 AM"))
	assert.False(t, SlotAdmissible(nil, slots, monday, "10:00 AM"))
	assert.False(t, SlotAdmissible(days, nil, monday, "10:00 AM"))
}

func TestWeekdayName(t *testing.T) {
	assert.Equal(t, "Monday", WeekdayName(0))
	assert.Equal(t, "Sunday", WeekdayName(6))
	assert.Equal(t, "", WeekdayName(7))
	assert.Equal(t, "", WeekdayName(-1))
	assert.Equal(t, "Wednesday", WeekdayName(MondayIndex(time.Wednesday)))
}

func TestParseWeekday(t *testing.T) {
	w, err := ParseWeekday(" Sunday ")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, w)

	w, err = ParseWeekday("THU")
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, w)

	_, err = ParseWeekday("Funday")
	assert.Error(t, err)
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
	}{
		{"10:00 AM", 10, 0},
		{"9:30 am", 9, 30},
		{"12:00 PM", 12, 0},
		{"12:15 AM", 0, 15},
		{"3:45PM", 15, 45},
		{"14:30", 14, 30},
	}
	for _, tt := range tests {
		h, m, err := ParseSlot(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.hour, h, tt.in)
		assert.Equal(t, tt.minute, m, tt.in)
	}

	_, _, err := ParseSlot("noon")
	assert.Error(t, err)
}

func TestAppointmentTime(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	at, err := AppointmentTime(date, "10:00 AM", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), at)

	assert.Equal(t, time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC), at.Add(-24*time.Hour))
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), at.Add(-time.Hour))

	_, err = AppointmentTime(date, "whenever", time.UTC)
	assert.Error(t, err)
}
