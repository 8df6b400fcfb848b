package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestCalendar() *BusinessCalendar {
	return NewBusinessCalendar(CalendarConfig{SaturdayAnchor: day("2025-01-04")})
}

func TestIsBusinessDayWeekdaySchedule(t *testing.T) {
	cal := newTestCalendar()

	open, err := cal.IsBusinessDay(LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.True(t, open)

	open, err = cal.IsBusinessDay(LocationBaytown, day("2025-01-10"))
	require.NoError(t, err)
	require.True(t, open)

	open, err = cal.IsBusinessDay(LocationHumble, day("2025-01-10"))
	require.NoError(t, err)
	require.False(t, open)

	reason, err := cal.ExpectedClosureReason(LocationHumble, day("2025-01-10"))
	require.NoError(t, err)
	require.Equal(t, "Humble is closed on Fridays", reason)
}

func TestIsBusinessDaySaturdayRotation(t *testing.T) {
	cal := newTestCalendar()
	cases := []struct {
		date string
		open bool
	}{
		{"2025-01-04", true},
		{"2025-01-11", false},
		{"2025-01-18", true},
		{"2024-12-21", true},
		{"2024-12-28", false},
	}
	for _, tc := range cases {
		open, err := cal.IsBusinessDay(LocationBaytown, day(tc.date))
		require.NoError(t, err)
		require.Equal(t, tc.open, open, tc.date)
	}

	open, err := cal.IsBusinessDay(LocationHumble, day("2025-01-04"))
	require.NoError(t, err)
	require.False(t, open)

	reason, err := cal.ExpectedClosureReason(LocationBaytown, day("2025-01-11"))
	require.NoError(t, err)
	require.Equal(t, "Baytown is closed on off-rotation Saturdays", reason)

	reason, err = cal.ExpectedClosureReason(LocationHumble, day("2025-01-04"))
	require.NoError(t, err)
	require.Equal(t, "Humble is closed on Saturdays", reason)
}

func TestIsBusinessDaySundayAlwaysClosed(t *testing.T) {
	cal := newTestCalendar()
	for _, loc := range Locations() {
		open, err := cal.IsBusinessDay(loc, day("2025-01-05"))
		require.NoError(t, err)
		require.False(t, open)

		reason, err := cal.ExpectedClosureReason(loc, day("2025-01-05"))
		require.NoError(t, err)
		require.Equal(t, loc.DisplayName()+" is closed on Sundays", reason)
	}
}

func TestIsBusinessDayOverrides(t *testing.T) {
	cal := NewBusinessCalendar(CalendarConfig{
		SaturdayAnchor: day("2025-01-04"),
		Overrides: map[Location]CalendarOverrides{
			LocationBaytown: {
				Closed: map[time.Time]string{
					day("2025-01-06"):                     "New Year staff retreat",
					day("2025-01-04").Add(15 * time.Hour): "",
				},
			},
			LocationHumble: {
				Open: map[time.Time]struct{}{day("2025-01-10"): {}},
			},
		},
	})

	open, err := cal.IsBusinessDay(LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.False(t, open)
	reason, err := cal.ExpectedClosureReason(LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, "New Year staff retreat", reason)

	reason, err = cal.ExpectedClosureReason(LocationBaytown, day("2025-01-04"))
	require.NoError(t, err)
	require.Equal(t, defaultOverrideReason, reason)

	open, err = cal.IsBusinessDay(LocationHumble, day("2025-01-10"))
	require.NoError(t, err)
	require.True(t, open)
}

func TestIsBusinessDayUnsupportedLocation(t *testing.T) {
	cal := newTestCalendar()
	_, err := cal.IsBusinessDay(Location("pasadena"), day("2025-01-06"))
	require.ErrorIs(t, err, ErrUnsupportedLocation)

	_, err = cal.Status(Location("pasadena"), day("2025-01-06"))
	require.ErrorIs(t, err, ErrUnsupportedLocation)
}

func TestCalendarStatus(t *testing.T) {
	cal := newTestCalendar()

	status, err := cal.Status(LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.True(t, status.Open)
	require.Empty(t, status.ClosureReason)

	status, err = cal.Status(LocationHumble, day("2025-01-10"))
	require.NoError(t, err)
	require.False(t, status.Open)
	require.Equal(t, "Humble is closed on Fridays", status.ClosureReason)
}
