package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
)

type planStore interface {
	planReader
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
	Delete(ctx context.Context, id string) error
}

// PlanService manages meal plans. Because eligibility is always evaluated
// against a student's current plan, edits here take effect on the next mark
// without touching existing records.
type PlanService struct {
	plans  planStore
	logger *zap.Logger
}

// NewPlanService constructs the service.
func NewPlanService(plans planStore, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{plans: plans, logger: logger}
}

// List returns every plan.
func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.plans.All(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list plans")
	}
	return plans, nil
}

// Get returns one plan.
func (s *PlanService) Get(ctx context.Context, id string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load plan")
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
	}
	return plan, nil
}

// Create adds a plan. At least one meal must be offered.
func (s *PlanService) Create(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return storageError(err, "failed to create plan")
	}
	s.logger.Info("plan created", zap.String("plan_id", plan.ID), zap.String("meals", plan.Meals.String()))
	return nil
}

// Update rewrites a plan.
func (s *PlanService) Update(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	if err := s.plans.Update(ctx, plan); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return storageError(err, "failed to update plan")
	}
	return nil
}

// Delete removes a plan.
func (s *PlanService) Delete(ctx context.Context, id string) error {
	if err := s.plans.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return storageError(err, "failed to delete plan")
	}
	return nil
}

func validatePlan(plan *models.Plan) error {
	if plan.Name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "plan name required")
	}
	if len(plan.Meals) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "plan must offer at least one meal")
	}
	if plan.MonthlyFee < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "monthly fee cannot be negative")
	}
	return nil
}
