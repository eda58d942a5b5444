package models

import "time"

// Student represents a mess member. JoinDate and EndDate bound the period the
// student's plan covers; both are calendar dates.
type Student struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name" validate:"required"`
	RoomNo    string    `db:"room_no" json:"room_no"`
	Phone     string    `db:"phone" json:"phone" validate:"omitempty,min=7,max=20"`
	PlanID    string    `db:"plan_id" json:"plan_id" validate:"required"`
	JoinDate  time.Time `db:"join_date" json:"join_date" validate:"required"`
	EndDate   time.Time `db:"end_date" json:"end_date" validate:"required"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ActiveOn reports whether the student may be marked for the given date.
func (s Student) ActiveOn(date time.Time) bool {
	if !s.Active {
		return false
	}
	join := CalendarDate(s.JoinDate)
	end := CalendarDate(s.EndDate)
	day := CalendarDate(date)
	return !day.Before(join) && !day.After(end)
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	PlanID    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
