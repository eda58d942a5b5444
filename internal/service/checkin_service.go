package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

type mealMarker interface {
	MarkMeal(ctx context.Context, studentID string, date time.Time, meal models.Meal, present bool, source models.MarkSource) (*models.AttendanceRecord, bool, error)
}

type recordFinder interface {
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
}

// Posters at the mess hall encode either a bare token or a deep link whose
// path ends in /checkin; both are matched offline.
var checkInPathPattern = regexp.MustCompile(`^(?:[a-z][a-z0-9+.-]*://[^/]*)?(?:/[A-Za-z0-9._~-]+)*/checkin/?$`)

// CheckInService runs the QR-triggered, student-initiated attendance mark.
// It is time-gated by the configured meal windows and idempotent: re-scanning
// confirms the existing mark instead of failing.
type CheckInService struct {
	students studentReader
	plans    planReader
	records  recordFinder
	engine   mealMarker
	metrics  *MetricsService
	logger   *zap.Logger

	windows []models.MealWindow
	tokens  map[string]struct{}
	clock   func() time.Time
}

// NewCheckInService constructs the flow. The clock must yield instants in the
// mess hall's local zone; meal days roll over at that zone's midnight.
func NewCheckInService(students studentReader, plans planReader, records recordFinder, engine mealMarker, windows []models.MealWindow, acceptedTokens []string, metrics *MetricsService, logger *zap.Logger, clock func() time.Time) *CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	tokens := make(map[string]struct{}, len(acceptedTokens))
	for _, token := range acceptedTokens {
		tokens[strings.TrimSpace(token)] = struct{}{}
	}
	return &CheckInService{
		students: students,
		plans:    plans,
		records:  records,
		engine:   engine,
		metrics:  metrics,
		logger:   logger,
		windows:  windows,
		tokens:   tokens,
		clock:    clock,
	}
}

// ValidPayload reports whether a scanned QR payload belongs to the mess hall.
// Pure string matching; no lookup.
func (s *CheckInService) ValidPayload(payload string) bool {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return false
	}
	if _, ok := s.tokens[payload]; ok {
		return true
	}
	return checkInPathPattern.MatchString(payload)
}

// CheckIn validates the scanned payload, resolves the active meal window, and
// marks the student present for it on the local calendar day of the scan.
func (s *CheckInService) CheckIn(ctx context.Context, qrPayload, userID string) (*models.CheckInResult, error) {
	if !s.ValidPayload(qrPayload) {
		s.observe("", "invalid_qr")
		return nil, appErrors.ErrInvalidQRCode
	}

	now := s.clock()
	meal, active := models.ResolveMeal(now, s.windows)
	if !active {
		s.observe("", "no_window")
		return nil, appErrors.ErrNoActiveMealWindow
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to load student")
	}
	if student == nil {
		s.observe(meal, appErrors.ErrStudentNotFound.Code)
		return nil, appErrors.ErrStudentNotFound
	}

	day := models.CalendarDate(now)
	if !student.Active {
		s.observe(meal, appErrors.ErrStudentInactive.Code)
		return nil, appErrors.ErrStudentInactive
	}
	if day.Before(models.CalendarDate(student.JoinDate)) {
		s.observe(meal, appErrors.ErrPlanNotStarted.Code)
		return nil, appErrors.ErrPlanNotStarted
	}
	if day.After(models.CalendarDate(student.EndDate)) {
		s.observe(meal, appErrors.ErrPlanExpired.Code)
		return nil, appErrors.ErrPlanExpired
	}

	plan, err := s.plans.FindByID(ctx, student.PlanID)
	if err != nil {
		return nil, storageError(err, "failed to load plan")
	}
	if plan == nil || !plan.Offers(meal) {
		s.observe(meal, appErrors.ErrNotEligible.Code)
		return nil, appErrors.ErrNotEligible
	}

	existing, err := s.records.FindByStudentAndDate(ctx, student.ID, day)
	if err != nil {
		return nil, storageError(err, "failed to load attendance record")
	}
	if existing != nil && existing.Flag(meal) {
		s.observe(meal, "already_marked")
		return &models.CheckInResult{Meal: meal, AlreadyMarked: true, Record: existing}, nil
	}

	record, created, err := s.engine.MarkMeal(ctx, student.ID, day, meal, true, models.SourceScan)
	if err != nil {
		return nil, err
	}

	// A concurrent scan can slip between the read above and the upsert. When
	// we saw no record yet the store reports someone else created it, the
	// twin scan won; report confirmation, not a second fresh mark.
	if existing == nil && !created {
		s.observe(meal, "already_marked")
		return &models.CheckInResult{Meal: meal, AlreadyMarked: true, Record: record}, nil
	}

	s.observe(meal, "marked")
	return &models.CheckInResult{Meal: meal, Record: record}, nil
}

func (s *CheckInService) observe(meal models.Meal, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveCheckIn(meal, outcome)
	}
}
