package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindows(t *testing.T) []MealWindow {
	t.Helper()
	breakfast, err := NewMealWindow(MealBreakfast, "07:30", "10:30", 30)
	require.NoError(t, err)
	lunch, err := NewMealWindow(MealLunch, "12:00", "14:30", 30)
	require.NoError(t, err)
	dinner, err := NewMealWindow(MealDinner, "19:00", "21:30", 30)
	require.NoError(t, err)
	return []MealWindow{breakfast, lunch, dinner}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 25, hour, minute, 0, 0, time.Local)
}

func TestResolveMealBoundaries(t *testing.T) {
	windows := testWindows(t)

	tests := []struct {
		name   string
		now    time.Time
		want   Meal
		active bool
	}{
		{"grace start", at(7, 0), MealBreakfast, true},
		{"before grace", at(6, 59), "", false},
		{"grace end", at(11, 0), MealBreakfast, true},
		{"after grace", at(11, 1), "", false},
		{"mid breakfast", at(8, 45), MealBreakfast, true},
		{"mid lunch", at(13, 0), MealLunch, true},
		{"mid dinner", at(20, 0), MealDinner, true},
		{"dead afternoon", at(16, 0), "", false},
		{"midnight", at(0, 0), "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			meal, ok := ResolveMeal(tc.now, windows)
			assert.Equal(t, tc.active, ok)
			if tc.active {
				assert.Equal(t, tc.want, meal)
			}
		})
	}
}

func TestResolveMealOverlappingGracePicksNearestNormalWindow(t *testing.T) {
	// Lunch grace reaches back to 11:00 while breakfast grace runs to 11:30;
	// between them the closer normal interval must win.
	breakfast, err := NewMealWindow(MealBreakfast, "07:30", "10:30", 60)
	require.NoError(t, err)
	lunch, err := NewMealWindow(MealLunch, "12:00", "14:30", 60)
	require.NoError(t, err)
	windows := []MealWindow{breakfast, lunch}

	meal, ok := ResolveMeal(at(11, 10), windows)
	require.True(t, ok)
	assert.Equal(t, MealBreakfast, meal)

	meal, ok = ResolveMeal(at(11, 20), windows)
	require.True(t, ok)
	assert.Equal(t, MealLunch, meal)
}

func TestNewMealWindowRejectsBadBounds(t *testing.T) {
	_, err := NewMealWindow(MealBreakfast, "10:30", "07:30", 30)
	assert.Error(t, err)

	_, err = NewMealWindow(MealBreakfast, "7h30", "10:30", 30)
	assert.Error(t, err)
}

func TestParseMealSet(t *testing.T) {
	set := ParseMealSet("Breakfast, Lunch")
	assert.True(t, set.Has(MealBreakfast))
	assert.True(t, set.Has(MealLunch))
	assert.False(t, set.Has(MealDinner))

	assert.Equal(t, "breakfast,lunch", set.String())

	assert.Empty(t, ParseMealSet("brunch, supper"))
	assert.Empty(t, ParseMealSet(""))
}

func TestCalendarDateUsesLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 00:30 local on the 26th is still 19:00 UTC on the 25th; the mark must
	// land on the local day.
	lateScan := time.Date(2026, 8, 26, 0, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), CalendarDate(lateScan))

	nightScan := time.Date(2026, 8, 25, 23, 55, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), CalendarDate(nightScan))
}

func TestStudentActiveOn(t *testing.T) {
	student := Student{
		Active:   true,
		JoinDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:  time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, student.ActiveOn(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, student.ActiveOn(time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, student.ActiveOn(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, student.ActiveOn(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	student.Active = false
	assert.False(t, student.ActiveOn(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)))
}
