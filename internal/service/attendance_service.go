package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ListActiveOn(ctx context.Context, date time.Time) ([]models.Student, error)
}

type planReader interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
	All(ctx context.Context) ([]models.Plan, error)
}

type attendanceStore interface {
	ApplyMark(ctx context.Context, studentID string, date time.Time, meal models.Meal, present bool, scan bool, now time.Time) (*models.AttendanceRecord, bool, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	UpdateFlags(ctx context.Context, id string, patch models.FlagPatch, now time.Time) (*models.AttendanceRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// AttendanceService is the state engine for per-student-per-day meal records.
// Every operation re-reads the student and plan so a plan reassignment between
// calls is honoured, and every record write funnels through the repository's
// atomic upsert so concurrent marks for the same (student, date) converge.
type AttendanceService struct {
	students studentReader
	plans    planReader
	records  attendanceStore
	cache    statsCache
	metrics  *MetricsService
	logger   *zap.Logger

	clock       func() time.Time
	statsTTL    time.Duration
	bulkWorkers int
}

// AttendanceServiceConfig tunes caching and bulk fan-out.
type AttendanceServiceConfig struct {
	StatsTTL    time.Duration
	BulkWorkers int
}

// NewAttendanceService constructs the engine. Cache and metrics may be nil.
func NewAttendanceService(students studentReader, plans planReader, records attendanceStore, cache statsCache, metrics *MetricsService, logger *zap.Logger, cfg AttendanceServiceConfig) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = time.Minute
	}
	if cfg.BulkWorkers <= 0 {
		cfg.BulkWorkers = 8
	}
	return &AttendanceService{
		students:    students,
		plans:       plans,
		records:     records,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		clock:       time.Now,
		statsTTL:    cfg.StatsTTL,
		bulkWorkers: cfg.BulkWorkers,
	}
}

// WithClock overrides the time source; used by tests and the check-in flow.
func (s *AttendanceService) WithClock(clock func() time.Time) *AttendanceService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func storageError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, message)
}

// MarkMeal sets one meal flag for a student on a date. Marking present
// requires the student's current plan to offer the meal; marking absent is
// always allowed. The operation is idempotent: repeating it yields the same
// record and succeeds again. The bool reports whether this call created the
// day's record.
func (s *AttendanceService) MarkMeal(ctx context.Context, studentID string, date time.Time, meal models.Meal, present bool, source models.MarkSource) (*models.AttendanceRecord, bool, error) {
	if !meal.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown meal %q", meal))
	}
	day := models.CalendarDate(date)

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, false, storageError(err, "failed to load student")
	}
	if student == nil {
		return nil, false, appErrors.ErrStudentNotFound
	}
	if !student.ActiveOn(day) {
		return nil, false, appErrors.ErrStudentInactive
	}

	if present {
		plan, err := s.plans.FindByID(ctx, student.PlanID)
		if err != nil {
			return nil, false, storageError(err, "failed to load plan")
		}
		if plan == nil || !plan.Offers(meal) {
			return nil, false, appErrors.ErrNotEligible
		}
	}

	record, created, err := s.records.ApplyMark(ctx, studentID, day, meal, present, source == models.SourceScan, s.clock().UTC())
	if err != nil {
		return nil, false, storageError(err, "failed to apply attendance mark")
	}

	if s.metrics != nil {
		s.metrics.ObserveMark(meal, source)
	}
	s.invalidateStats(ctx, day)
	return record, created, nil
}

// UpdateRecord patches one or more meal flags on an existing record. Every
// flag being raised is re-checked against the owning student's current plan.
func (s *AttendanceService) UpdateRecord(ctx context.Context, recordID string, patch models.FlagPatch) (*models.AttendanceRecord, error) {
	if patch.IsEmpty() {
		return nil, appErrors.ErrNoFieldsProvided
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, storageError(err, "failed to load attendance record")
	}
	if record == nil {
		return nil, appErrors.ErrRecordNotFound
	}

	if raised := patch.Raised(); len(raised) > 0 {
		student, err := s.students.FindByID(ctx, record.StudentID)
		if err != nil {
			return nil, storageError(err, "failed to load student")
		}
		if student == nil {
			return nil, appErrors.ErrStudentNotFound
		}
		plan, err := s.plans.FindByID(ctx, student.PlanID)
		if err != nil {
			return nil, storageError(err, "failed to load plan")
		}
		for _, meal := range raised {
			if plan == nil || !plan.Offers(meal) {
				return nil, appErrors.Clone(appErrors.ErrNotEligible, fmt.Sprintf("student plan does not include %s", meal))
			}
		}
	}

	updated, err := s.records.UpdateFlags(ctx, recordID, patch, s.clock().UTC())
	if err != nil {
		return nil, storageError(err, "failed to update attendance record")
	}
	if updated == nil {
		return nil, appErrors.ErrRecordNotFound
	}
	s.invalidateStats(ctx, updated.Date)
	return updated, nil
}

// DeleteRecord removes a day's record entirely. A second delete reports
// RECORD_NOT_FOUND so callers can distinguish first deletion from a retry.
func (s *AttendanceService) DeleteRecord(ctx context.Context, recordID string) error {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return storageError(err, "failed to load attendance record")
	}
	if record == nil {
		return appErrors.ErrRecordNotFound
	}
	deleted, err := s.records.Delete(ctx, recordID)
	if err != nil {
		return storageError(err, "failed to delete attendance record")
	}
	if !deleted {
		return appErrors.ErrRecordNotFound
	}
	s.invalidateStats(ctx, record.Date)
	return nil
}

// Record returns a single record by id.
func (s *AttendanceService) Record(ctx context.Context, recordID string) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, storageError(err, "failed to load attendance record")
	}
	if record == nil {
		return nil, appErrors.ErrRecordNotFound
	}
	return record, nil
}

// MarkBulk applies one meal mark to many students, fanning out over a bounded
// worker pool. One student's failure never aborts the batch; the result maps
// each failed student to the code of its precondition failure.
func (s *AttendanceService) MarkBulk(ctx context.Context, studentIDs []string, date time.Time, meal models.Meal, present bool) (*models.BulkResult, error) {
	if !meal.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown meal %q", meal))
	}
	if len(studentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no students provided")
	}

	if s.metrics != nil {
		s.metrics.ObserveBulk(len(studentIDs))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result models.BulkResult
	)
	sem := make(chan struct{}, s.bulkWorkers)

	for _, id := range studentIDs {
		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, _, err := s.MarkMeal(ctx, studentID, date, meal, present, models.SourceManual)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, models.BulkFailure{
					StudentID: studentID,
					Reason:    appErrors.FromError(err).Code,
				})
				return
			}
			result.SuccessCount++
		}(id)
	}
	wg.Wait()

	return &result, nil
}

// Stats aggregates per-meal turnout for a date: how many eligible students the
// roster held and how many records carry the flag. Served from cache when
// fresh; eligibility is recomputed from current plans on every miss.
func (s *AttendanceService) Stats(ctx context.Context, date time.Time) (models.DayStats, error) {
	day := models.CalendarDate(date)
	key := statsCacheKey(day)

	if s.cache != nil {
		var cached models.DayStats
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	records, err := s.records.ListForDate(ctx, day)
	if err != nil {
		return nil, storageError(err, "failed to list attendance records")
	}
	students, err := s.students.ListActiveOn(ctx, day)
	if err != nil {
		return nil, storageError(err, "failed to list active students")
	}
	plans, err := s.plans.All(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list plans")
	}

	planMeals := make(map[string]models.MealSet, len(plans))
	for _, plan := range plans {
		planMeals[plan.ID] = plan.Meals
	}

	stats := models.DayStats{}
	for _, meal := range models.AllMeals {
		eligible := 0
		for _, student := range students {
			if planMeals[student.PlanID].Has(meal) {
				eligible++
			}
		}
		present := 0
		for _, record := range records {
			if record.Flag(meal) {
				present++
			}
		}
		percent := 0
		if eligible > 0 {
			percent = int(math.Round(float64(present) / float64(eligible) * 100))
		}
		stats[meal] = models.MealStats{Present: present, EligibleTotal: eligible, Percent: percent}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.statsTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

func statsCacheKey(day time.Time) string {
	return "attendance:stats:" + day.Format("2006-01-02")
}

func (s *AttendanceService) invalidateStats(ctx context.Context, day time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(models.CalendarDate(day))); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
