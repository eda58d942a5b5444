package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/messhall-api/internal/models"
)

const studentColumns = "id, user_id, full_name, room_no, phone, plan_id, join_date, end_date, active, created_at, updated_at"

// StudentRepository handles persistence for mess members.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by primary key, or nil when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByUserID resolves the student linked to an app user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE user_id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student by user: %w", err)
	}
	return &student, nil
}

// List returns students matching the filter with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR room_no ILIKE $%d)", len(args), len(args)))
	}
	if filter.PlanID != "" {
		args = append(args, filter.PlanID)
		where = append(where, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":       "full_name",
		"room":       "room_no",
		"join_date":  "join_date",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		studentColumns, whereClause, sortColumn, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListActiveOn returns students whose membership covers the given date. Plan
// eligibility is resolved by the caller; this only filters the roster.
func (r *StudentRepository) ListActiveOn(ctx context.Context, date time.Time) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE active = TRUE AND join_date <= $1 AND end_date >= $1", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, date); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	query := `INSERT INTO students (id, user_id, full_name, room_no, phone, plan_id, join_date, end_date, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		student.ID, student.UserID, student.FullName, student.RoomNo, student.Phone,
		student.PlanID, student.JoinDate, student.EndDate, student.Active,
		student.CreatedAt, student.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	query := `UPDATE students SET full_name = $2, room_no = $3, phone = $4, plan_id = $5,
join_date = $6, end_date = $7, active = $8, updated_at = $9 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		student.ID, student.FullName, student.RoomNo, student.Phone, student.PlanID,
		student.JoinDate, student.EndDate, student.Active, student.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a student from the roster.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
