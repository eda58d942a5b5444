package models

import "time"

// MarkSource distinguishes who created a mark: a student's QR scan or an
// admin acting manually (single or bulk).
type MarkSource string

const (
	SourceManual MarkSource = "manual"
	SourceScan   MarkSource = "scan"
)

// AttendanceRecord is the single row a student gets per calendar day. The
// unique key on (student_id, date) is the system's central invariant.
// ScannedAt is set once, when a QR scan creates the row, and never after.
type AttendanceRecord struct {
	ID        string     `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id"`
	Date      time.Time  `db:"date" json:"date"`
	Breakfast bool       `db:"breakfast" json:"breakfast"`
	Lunch     bool       `db:"lunch" json:"lunch"`
	Dinner    bool       `db:"dinner" json:"dinner"`
	ScannedAt *time.Time `db:"scanned_at" json:"scanned_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Flag returns the record's flag for the given meal.
func (r AttendanceRecord) Flag(meal Meal) bool {
	switch meal {
	case MealBreakfast:
		return r.Breakfast
	case MealLunch:
		return r.Lunch
	case MealDinner:
		return r.Dinner
	default:
		return false
	}
}

// FlagPatch is a partial update of the three meal flags.
type FlagPatch struct {
	Breakfast *bool `json:"breakfast,omitempty"`
	Lunch     *bool `json:"lunch,omitempty"`
	Dinner    *bool `json:"dinner,omitempty"`
}

// IsEmpty reports whether the patch touches nothing.
func (p FlagPatch) IsEmpty() bool {
	return p.Breakfast == nil && p.Lunch == nil && p.Dinner == nil
}

// Raised lists the meals the patch sets to true; those need an eligibility check.
func (p FlagPatch) Raised() []Meal {
	var meals []Meal
	if p.Breakfast != nil && *p.Breakfast {
		meals = append(meals, MealBreakfast)
	}
	if p.Lunch != nil && *p.Lunch {
		meals = append(meals, MealLunch)
	}
	if p.Dinner != nil && *p.Dinner {
		meals = append(meals, MealDinner)
	}
	return meals
}

// MealStats aggregates one meal's turnout for a day.
type MealStats struct {
	Present       int `json:"present"`
	EligibleTotal int `json:"eligible_total"`
	Percent       int `json:"percent"`
}

// DayStats maps each meal to its turnout.
type DayStats map[Meal]MealStats

// BulkFailure records why one student in a bulk mark was skipped. Reason is
// the error code of the underlying failure.
type BulkFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkResult summarises a bulk mark: per-student failures are data, never a
// batch-level error.
type BulkResult struct {
	SuccessCount int           `json:"success_count"`
	Failures     []BulkFailure `json:"failures,omitempty"`
}

// CheckInResult is the outcome of a successful QR check-in. AlreadyMarked
// distinguishes a repeat scan, which is confirmation rather than an error.
type CheckInResult struct {
	Meal          Meal              `json:"meal"`
	AlreadyMarked bool              `json:"already_marked"`
	Record        *AttendanceRecord `json:"record"`
}
