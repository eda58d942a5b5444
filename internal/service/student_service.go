package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

type studentStore interface {
	studentReader
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

// StudentService manages the mess roster.
type StudentService struct {
	students  studentStore
	plans     planReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(students studentStore, plans planReader, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, plans: plans, validator: validator.New(), logger: logger}
}

// List returns a page of students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, storageError(err, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.ErrStudentNotFound
	}
	return student, nil
}

// Create enrols a student. The referenced plan must exist and the membership
// interval must be non-empty.
func (s *StudentService) Create(ctx context.Context, student *models.Student) error {
	if err := s.validate(ctx, student); err != nil {
		return err
	}
	if err := s.students.Create(ctx, student); err != nil {
		return storageError(err, "failed to create student")
	}
	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("plan_id", student.PlanID))
	return nil
}

// Update rewrites a student's mutable fields.
func (s *StudentService) Update(ctx context.Context, student *models.Student) error {
	if err := s.validate(ctx, student); err != nil {
		return err
	}
	if err := s.students.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return storageError(err, "failed to update student")
	}
	return nil
}

// Delete removes a student from the roster.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.students.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrStudentNotFound
		}
		return storageError(err, "failed to delete student")
	}
	return nil
}

func (s *StudentService) validate(ctx context.Context, student *models.Student) error {
	if err := s.validator.Struct(student); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if student.EndDate.Before(student.JoinDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end date precedes join date")
	}
	plan, err := s.plans.FindByID(ctx, student.PlanID)
	if err != nil {
		return storageError(err, "failed to load plan")
	}
	if plan == nil {
		return appErrors.Clone(appErrors.ErrValidation, "unknown plan")
	}
	student.JoinDate = models.CalendarDate(student.JoinDate)
	student.EndDate = models.CalendarDate(student.EndDate)
	return nil
}
