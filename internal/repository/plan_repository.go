package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/messhall-api/internal/models"
)

const planColumns = "id, name, monthly_fee, meals, created_at, updated_at"

// PlanRepository handles persistence for meal plans. The meals column is free
// text ("Breakfast, Lunch"); this repository is the one place that text gets
// parsed into a MealSet — the engine never sees the raw string.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs the repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindByID returns a plan with its parsed meal set, or nil when absent.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE id = $1", planColumns)
	var plan models.Plan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	plan.Meals = models.ParseMealSet(plan.MealsRaw)
	return &plan, nil
}

// Meals returns the meal set a plan offers; empty when the plan is unknown.
func (r *PlanRepository) Meals(ctx context.Context, planID string) (models.MealSet, error) {
	plan, err := r.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return models.MealSet{}, nil
	}
	return plan.Meals, nil
}

// All returns every plan.
func (r *PlanRepository) All(ctx context.Context) ([]models.Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans ORDER BY name", planColumns)
	var plans []models.Plan
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	for i := range plans {
		plans[i].Meals = models.ParseMealSet(plans[i].MealsRaw)
	}
	return plans, nil
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	now := time.Now().UTC()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plan.MealsRaw = plan.Meals.String()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	query := `INSERT INTO plans (id, name, monthly_fee, meals, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		plan.ID, plan.Name, plan.MonthlyFee, plan.MealsRaw, plan.CreatedAt, plan.UpdatedAt); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// Update rewrites a plan.
func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) error {
	plan.MealsRaw = plan.Meals.String()
	plan.UpdatedAt = time.Now().UTC()
	query := `UPDATE plans SET name = $2, monthly_fee = $3, meals = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, plan.ID, plan.Name, plan.MonthlyFee, plan.MealsRaw, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a plan.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM plans WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
