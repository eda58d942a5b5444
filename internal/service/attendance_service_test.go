package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

type fakeStudentRepo struct {
	students map[string]models.Student
}

func (f *fakeStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeStudentRepo) FindByUserID(_ context.Context, userID string) (*models.Student, error) {
	for _, s := range f.students {
		if s.UserID == userID {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStudentRepo) ListActiveOn(_ context.Context, date time.Time) ([]models.Student, error) {
	var out []models.Student
	for _, s := range f.students {
		if s.ActiveOn(date) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePlanRepo struct {
	plans map[string]models.Plan
}

func (f *fakePlanRepo) FindByID(_ context.Context, id string) (*models.Plan, error) {
	if p, ok := f.plans[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakePlanRepo) All(_ context.Context) ([]models.Plan, error) {
	var out []models.Plan
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

// fakeRecordStore mimics the Postgres upsert: one row per (student, date),
// scanned_at written only when a scan creates the row. hideNextFind simulates
// a twin writer sneaking in between a read and the upsert.
type fakeRecordStore struct {
	mu           sync.Mutex
	records      map[string]*models.AttendanceRecord
	nextID       int
	hideNextFind bool
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: map[string]*models.AttendanceRecord{}}
}

func recordKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func setFlag(record *models.AttendanceRecord, meal models.Meal, present bool) {
	switch meal {
	case models.MealBreakfast:
		record.Breakfast = present
	case models.MealLunch:
		record.Lunch = present
	case models.MealDinner:
		record.Dinner = present
	}
}

func (f *fakeRecordStore) ApplyMark(_ context.Context, studentID string, date time.Time, meal models.Meal, present bool, scan bool, now time.Time) (*models.AttendanceRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(studentID, date)
	if record, ok := f.records[key]; ok {
		setFlag(record, meal, present)
		record.UpdatedAt = now
		clone := *record
		return &clone, false, nil
	}
	f.nextID++
	record := &models.AttendanceRecord{
		ID:        fmt.Sprintf("rec-%d", f.nextID),
		StudentID: studentID,
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
	setFlag(record, meal, present)
	if scan {
		scannedAt := now
		record.ScannedAt = &scannedAt
	}
	f.records[key] = record
	clone := *record
	return &clone, true, nil
}

func (f *fakeRecordStore) FindByStudentAndDate(_ context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideNextFind {
		f.hideNextFind = false
		return nil, nil
	}
	if record, ok := f.records[recordKey(studentID, date)]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeRecordStore) FindByID(_ context.Context, id string) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.records {
		if record.ID == id {
			clone := *record
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordStore) UpdateFlags(_ context.Context, id string, patch models.FlagPatch, now time.Time) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.records {
		if record.ID != id {
			continue
		}
		if patch.Breakfast != nil {
			record.Breakfast = *patch.Breakfast
		}
		if patch.Lunch != nil {
			record.Lunch = *patch.Lunch
		}
		if patch.Dinner != nil {
			record.Dinner = *patch.Dinner
		}
		record.UpdatedAt = now
		clone := *record
		return &clone, nil
	}
	return nil, nil
}

func (f *fakeRecordStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, record := range f.records {
		if record.ID == id {
			delete(f.records, key)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecordStore) ListForDate(_ context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttendanceRecord
	for _, record := range f.records {
		if record.Date.Equal(date) {
			out = append(out, *record)
		}
	}
	return out, nil
}

var testDay = time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

func testStudents() *fakeStudentRepo {
	join := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	return &fakeStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", UserID: "u1", PlanID: "full", JoinDate: join, EndDate: end, Active: true},
		"s2": {ID: "s2", UserID: "u2", PlanID: "veg-two", JoinDate: join, EndDate: end, Active: true},
		"s3": {ID: "s3", UserID: "u3", PlanID: "full", JoinDate: join, EndDate: end, Active: false},
	}}
}

func testPlans() *fakePlanRepo {
	return &fakePlanRepo{plans: map[string]models.Plan{
		"full":    {ID: "full", Name: "Full Board", Meals: models.ParseMealSet("breakfast,lunch,dinner")},
		"veg-two": {ID: "veg-two", Name: "Two Meals", Meals: models.ParseMealSet("breakfast,lunch")},
	}}
}

func newTestEngine(records *fakeRecordStore) *AttendanceService {
	return NewAttendanceService(testStudents(), testPlans(), records, nil, nil, zap.NewNop(), AttendanceServiceConfig{})
}

func TestMarkMealCreatesRecordIdempotently(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	record, created, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealLunch, true, models.SourceManual)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, record.Lunch)
	assert.False(t, record.Breakfast)
	assert.Nil(t, record.ScannedAt)

	again, created, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealLunch, true, models.SourceManual)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, record.ID, again.ID)
	assert.True(t, again.Lunch)
	assert.Len(t, store.records, 1)
}

func TestMarkMealEligibilityInvariant(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	// veg-two excludes dinner.
	_, _, err := svc.MarkMeal(context.Background(), "s2", testDay, models.MealDinner, true, models.SourceManual)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))

	// Clearing an ineligible flag is a no-op downgrade and always allowed.
	record, _, err := svc.MarkMeal(context.Background(), "s2", testDay, models.MealDinner, false, models.SourceManual)
	require.NoError(t, err)
	assert.False(t, record.Dinner)
}

func TestMarkMealPreconditions(t *testing.T) {
	svc := newTestEngine(newFakeRecordStore())

	_, _, err := svc.MarkMeal(context.Background(), "ghost", testDay, models.MealLunch, true, models.SourceManual)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentNotFound))

	_, _, err = svc.MarkMeal(context.Background(), "s3", testDay, models.MealLunch, true, models.SourceManual)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentInactive))

	beforeJoin := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	_, _, err = svc.MarkMeal(context.Background(), "s1", beforeJoin, models.MealLunch, true, models.SourceManual)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentInactive))
}

func TestScanNeverOverwritesScannedAt(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	record, _, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealBreakfast, true, models.SourceManual)
	require.NoError(t, err)
	assert.Nil(t, record.ScannedAt)

	// A later scan that finds the record pre-existing must not backfill it.
	record, created, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealLunch, true, models.SourceScan)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, record.ScannedAt)
}

func TestUpdateRecord(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	record, _, err := svc.MarkMeal(context.Background(), "s2", testDay, models.MealBreakfast, true, models.SourceManual)
	require.NoError(t, err)

	_, err = svc.UpdateRecord(context.Background(), record.ID, models.FlagPatch{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNoFieldsProvided))

	yes := true
	_, err = svc.UpdateRecord(context.Background(), record.ID, models.FlagPatch{Dinner: &yes})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))

	no := false
	updated, err := svc.UpdateRecord(context.Background(), record.ID, models.FlagPatch{Breakfast: &no, Lunch: &yes})
	require.NoError(t, err)
	assert.False(t, updated.Breakfast)
	assert.True(t, updated.Lunch)

	_, err = svc.UpdateRecord(context.Background(), "missing", models.FlagPatch{Lunch: &yes})
	assert.True(t, appErrors.Is(err, appErrors.ErrRecordNotFound))
}

func TestDeleteRecordTwice(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	record, _, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealDinner, true, models.SourceManual)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRecord(context.Background(), record.ID))

	err = svc.DeleteRecord(context.Background(), record.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrRecordNotFound))
}

func TestMarkBulkAggregatesPartialFailures(t *testing.T) {
	students := testStudents()
	join := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := 4; i <= 6; i++ {
		id := fmt.Sprintf("s%d", i)
		students.students[id] = models.Student{ID: id, PlanID: "full", JoinDate: join, EndDate: end, Active: true}
	}
	store := newFakeRecordStore()
	svc := NewAttendanceService(students, testPlans(), store, nil, nil, zap.NewNop(), AttendanceServiceConfig{BulkWorkers: 3})

	// s2's plan excludes dinner; the other four are eligible.
	result, err := svc.MarkBulk(context.Background(), []string{"s1", "s2", "s4", "s5", "s6"}, testDay, models.MealDinner, true)
	require.NoError(t, err)
	assert.Equal(t, 4, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "s2", result.Failures[0].StudentID)
	assert.Equal(t, appErrors.ErrNotEligible.Code, result.Failures[0].Reason)
}

func TestStats(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	// Active roster: s1 (full board), s2 (breakfast+lunch). s3 is inactive.
	_, _, err := svc.MarkMeal(context.Background(), "s1", testDay, models.MealBreakfast, true, models.SourceManual)
	require.NoError(t, err)
	_, _, err = svc.MarkMeal(context.Background(), "s2", testDay, models.MealBreakfast, true, models.SourceManual)
	require.NoError(t, err)
	_, _, err = svc.MarkMeal(context.Background(), "s1", testDay, models.MealDinner, true, models.SourceManual)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), testDay)
	require.NoError(t, err)

	assert.Equal(t, models.MealStats{Present: 2, EligibleTotal: 2, Percent: 100}, stats[models.MealBreakfast])
	assert.Equal(t, models.MealStats{Present: 0, EligibleTotal: 2, Percent: 0}, stats[models.MealLunch])
	assert.Equal(t, models.MealStats{Present: 1, EligibleTotal: 1, Percent: 100}, stats[models.MealDinner])
}

func TestStatsZeroEligible(t *testing.T) {
	store := newFakeRecordStore()
	empty := &fakeStudentRepo{students: map[string]models.Student{}}
	svc := NewAttendanceService(empty, testPlans(), store, nil, nil, zap.NewNop(), AttendanceServiceConfig{})

	stats, err := svc.Stats(context.Background(), testDay)
	require.NoError(t, err)
	for _, meal := range models.AllMeals {
		assert.Equal(t, 0, stats[meal].Percent)
		assert.Equal(t, 0, stats[meal].EligibleTotal)
	}
}

func TestConcurrentMarksConvergeToOneRecord(t *testing.T) {
	store := newFakeRecordStore()
	svc := newTestEngine(store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		meal := models.AllMeals[i%2] // breakfast and lunch only; s2-compatible
		wg.Add(1)
		go func(m models.Meal) {
			defer wg.Done()
			_, _, err := svc.MarkMeal(context.Background(), "s2", testDay, m, true, models.SourceManual)
			assert.NoError(t, err)
		}(meal)
	}
	wg.Wait()

	assert.Len(t, store.records, 1)
	record, err := store.FindByStudentAndDate(context.Background(), "s2", testDay)
	require.NoError(t, err)
	assert.True(t, record.Breakfast)
	assert.True(t, record.Lunch)
	assert.False(t, record.Dinner)
}
