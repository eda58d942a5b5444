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

const attendanceColumns = "id, student_id, date, breakfast, lunch, dinner, scanned_at, created_at, updated_at"

// AttendanceRepository persists per-student-per-day meal records. The table
// carries a unique constraint on (student_id, date); every write that could
// create a row goes through a single-statement upsert so concurrent scans and
// admin marks cannot race a check-then-insert window.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func mealColumn(meal models.Meal) (string, error) {
	switch meal {
	case models.MealBreakfast:
		return "breakfast", nil
	case models.MealLunch:
		return "lunch", nil
	case models.MealDinner:
		return "dinner", nil
	default:
		return "", fmt.Errorf("unknown meal %q", meal)
	}
}

// ApplyMark sets one meal flag for (studentID, date), creating the record when
// absent. Only the inserted branch writes scanned_at; a conflicting row keeps
// whatever scanned_at it already has, so a scan that lands second never
// overwrites the first creation's provenance. The bool reports whether this
// call created the row (xmax = 0 on the returned tuple), which lets the
// check-in flow tell a fresh mark from a lost creation race.
func (r *AttendanceRepository) ApplyMark(ctx context.Context, studentID string, date time.Time, meal models.Meal, present bool, scan bool, now time.Time) (*models.AttendanceRecord, bool, error) {
	col, err := mealColumn(meal)
	if err != nil {
		return nil, false, err
	}

	flags := map[string]bool{"breakfast": false, "lunch": false, "dinner": false}
	flags[col] = present

	var scannedAt *time.Time
	if scan {
		scannedAt = &now
	}

	query := fmt.Sprintf(`INSERT INTO attendance_records (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (student_id, date)
DO UPDATE SET %s = EXCLUDED.%s, updated_at = EXCLUDED.updated_at
RETURNING %s, (xmax = 0) AS inserted`, attendanceColumns, col, col, attendanceColumns)

	var stored struct {
		models.AttendanceRecord
		Inserted bool `db:"inserted"`
	}
	err = r.db.GetContext(ctx, &stored, query,
		uuid.NewString(), studentID, date,
		flags["breakfast"], flags["lunch"], flags["dinner"],
		scannedAt, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("apply attendance mark: %w", err)
	}
	return &stored.AttendanceRecord, stored.Inserted, nil
}

// FindByStudentAndDate returns the day's record, or nil when none exists.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE student_id = $1 AND date = $2", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// FindByID returns a record by primary key, or nil when none exists.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE id = $1", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance record by id: %w", err)
	}
	return &record, nil
}

// UpdateFlags applies a multi-flag patch in one UPDATE. Returns nil when the
// record no longer exists.
func (r *AttendanceRepository) UpdateFlags(ctx context.Context, id string, patch models.FlagPatch, now time.Time) (*models.AttendanceRecord, error) {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, value bool) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Breakfast != nil {
		add("breakfast", *patch.Breakfast)
	}
	if patch.Lunch != nil {
		add("lunch", *patch.Lunch)
	}
	if patch.Dinner != nil {
		add("dinner", *patch.Dinner)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("empty attendance patch")
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE attendance_records SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), attendanceColumns)

	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update attendance flags: %w", err)
	}
	return &stored, nil
}

// Delete removes a record entirely. The bool reports whether a row existed.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM attendance_records WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete attendance record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attendance record: %w", err)
	}
	return affected > 0, nil
}

// ListForDate returns every record for the given day.
func (r *AttendanceRepository) ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE date = $1 ORDER BY created_at", attendanceColumns)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, date); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}
