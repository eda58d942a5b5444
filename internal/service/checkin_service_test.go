package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

func testWindows(t *testing.T) []models.MealWindow {
	t.Helper()
	breakfast, err := models.NewMealWindow(models.MealBreakfast, "07:30", "10:30", 30)
	require.NoError(t, err)
	lunch, err := models.NewMealWindow(models.MealLunch, "12:00", "14:30", 30)
	require.NoError(t, err)
	dinner, err := models.NewMealWindow(models.MealDinner, "19:00", "21:30", 30)
	require.NoError(t, err)
	return []models.MealWindow{breakfast, lunch, dinner}
}

func newTestCheckIn(t *testing.T, store *fakeRecordStore, at time.Time) *CheckInService {
	t.Helper()
	clock := func() time.Time { return at }
	engine := newTestEngine(store).WithClock(clock)
	return NewCheckInService(testStudents(), testPlans(), store, engine, testWindows(t),
		[]string{"messhall://checkin", "MESS_CHECKIN"}, nil, zap.NewNop(), clock)
}

func TestValidPayload(t *testing.T) {
	svc := newTestCheckIn(t, newFakeRecordStore(), time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	valid := []string{
		"messhall://checkin",
		"  MESS_CHECKIN  ",
		"https://mess.example.com/checkin",
		"https://mess.example.com/api/v1/checkin/",
		"/checkin",
	}
	for _, payload := range valid {
		assert.True(t, svc.ValidPayload(payload), payload)
	}

	invalid := []string{
		"",
		"   ",
		"hello world",
		"https://evil.example.com/phish",
		"checkin",
	}
	for _, payload := range invalid {
		assert.False(t, svc.ValidPayload(payload), payload)
	}
}

func TestCheckInMarksActiveWindowMeal(t *testing.T) {
	store := newFakeRecordStore()
	at := time.Date(2026, 8, 25, 8, 15, 0, 0, time.UTC)
	svc := newTestCheckIn(t, store, at)

	result, err := svc.CheckIn(context.Background(), "messhall://checkin", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.MealBreakfast, result.Meal)
	assert.False(t, result.AlreadyMarked)
	assert.True(t, result.Record.Breakfast)
	require.NotNil(t, result.Record.ScannedAt)
	assert.Equal(t, at.UTC(), result.Record.ScannedAt.UTC())
}

func TestCheckInRepeatScanConfirms(t *testing.T) {
	store := newFakeRecordStore()
	at := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)
	svc := newTestCheckIn(t, store, at)

	first, err := svc.CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	require.NoError(t, err)

	second, err := svc.CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyMarked)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Len(t, store.records, 1)
}

func TestCheckInGraceExtendsWindow(t *testing.T) {
	// 10:45 is past the 10:30 close but inside the 30 minute grace.
	svc := newTestCheckIn(t, newFakeRecordStore(), time.Date(2026, 8, 25, 10, 45, 0, 0, time.UTC))

	result, err := svc.CheckIn(context.Background(), "messhall://checkin", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.MealBreakfast, result.Meal)
}

func TestCheckInOutsideEveryWindow(t *testing.T) {
	svc := newTestCheckIn(t, newFakeRecordStore(), time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC))

	_, err := svc.CheckIn(context.Background(), "messhall://checkin", "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNoActiveMealWindow))
}

func TestCheckInRejectsForeignPayload(t *testing.T) {
	svc := newTestCheckIn(t, newFakeRecordStore(), time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	_, err := svc.CheckIn(context.Background(), "https://evil.example.com/phish", "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidQRCode))
}

func TestCheckInPreconditions(t *testing.T) {
	at := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)

	_, err := newTestCheckIn(t, newFakeRecordStore(), at).CheckIn(context.Background(), "MESS_CHECKIN", "unknown")
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotFound))

	// u3 exists but is deactivated.
	_, err = newTestCheckIn(t, newFakeRecordStore(), at).CheckIn(context.Background(), "MESS_CHECKIN", "u3")
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentInactive))

	// Before the plan's join date.
	early := time.Date(2026, 7, 15, 8, 0, 0, 0, time.UTC)
	_, err = newTestCheckIn(t, newFakeRecordStore(), early).CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPlanNotStarted))

	// After the plan's end date.
	late := time.Date(2027, 1, 10, 8, 0, 0, 0, time.UTC)
	_, err = newTestCheckIn(t, newFakeRecordStore(), late).CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPlanExpired))

	// u2's plan has no dinner.
	dinner := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)
	_, err = newTestCheckIn(t, newFakeRecordStore(), dinner).CheckIn(context.Background(), "MESS_CHECKIN", "u2")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))
}

func TestCheckInUsesLocalCalendarDay(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 19:30 local dinner on the 25th is 14:00 UTC; the record must carry the
	// local day, not a UTC-shifted one.
	store := newFakeRecordStore()
	at := time.Date(2026, 8, 25, 19, 30, 0, 0, kolkata)
	svc := newTestCheckIn(t, store, at)

	result, err := svc.CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), result.Record.Date)
}

func TestCheckInLosingRaceReportsAlreadyMarked(t *testing.T) {
	store := newFakeRecordStore()
	at := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	svc := newTestCheckIn(t, store, at)

	// Seed the day's record, then hide it from the pre-upsert read so the
	// service behaves like the second of two simultaneous scans.
	_, _, err := store.ApplyMark(context.Background(), "s1", testDay, models.MealBreakfast, true, true, at)
	require.NoError(t, err)
	store.hideNextFind = true

	result, err := svc.CheckIn(context.Background(), "MESS_CHECKIN", "u1")
	require.NoError(t, err)
	assert.True(t, result.AlreadyMarked)
	assert.Len(t, store.records, 1)
}
