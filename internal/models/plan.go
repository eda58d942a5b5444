package models

import "time"

// Plan is a meal plan students subscribe to. MealsRaw holds the stored
// free-text meal list; Meals is the parsed set every eligibility check uses.
type Plan struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	MonthlyFee int       `db:"monthly_fee" json:"monthly_fee"`
	MealsRaw   string    `db:"meals" json:"-"`
	Meals      MealSet   `db:"-" json:"meals"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Offers reports whether the plan covers the given meal.
func (p Plan) Offers(meal Meal) bool {
	return p.Meals.Has(meal)
}
