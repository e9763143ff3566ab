package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
	}{
		{"2025-01-10", true},
		{"2024-02-29", true},
		{"2025-02-29", false},
		{"2025-1-10", false},
		{"10-01-2025", false},
		{"", false},
		{"2025-01-10T00:00:00Z", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidDate(tc.in))
		})
	}
}

func TestValidTime(t *testing.T) {
	assert.True(t, ValidTime("09:00"))
	assert.True(t, ValidTime("23:30"))
	assert.False(t, ValidTime("9:00"))
	assert.False(t, ValidTime("24:00"))
	assert.False(t, ValidTime("09:00:00"))
}

func TestWeekday(t *testing.T) {
	// 2025-01-13 was a Monday.
	day, err := Weekday("2025-01-13")
	require.NoError(t, err)
	assert.Equal(t, "Monday", day)

	day, err = Weekday("2025-01-14")
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", day)

	_, err = Weekday("nope")
	assert.Error(t, err)
}

func TestAddDays(t *testing.T) {
	got, err := AddDays("2024-12-31", 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", got)

	got, err = AddDays("2025-03-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", got)
}

func TestTodayUsesClockLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 2025-01-10 22:00 UTC is already 2025-01-11 in UTC+5.
	instant := time.Date(2025, 1, 10, 22, 0, 0, 0, time.UTC).In(loc)
	clock := FixedClock(instant)

	assert.Equal(t, "2025-01-11", Today(clock))
	assert.Equal(t, "2025-01-10", Yesterday(clock))
}
