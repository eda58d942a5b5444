package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/messhall-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceRows(record models.AttendanceRecord) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "date", "breakfast", "lunch", "dinner", "scanned_at", "created_at", "updated_at"}).
		AddRow(record.ID, record.StudentID, record.Date, record.Breakfast, record.Lunch, record.Dinner, record.ScannedAt, record.CreatedAt, record.UpdatedAt)
}

func attendanceUpsertRows(record models.AttendanceRecord, inserted bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "date", "breakfast", "lunch", "dinner", "scanned_at", "created_at", "updated_at", "inserted"}).
		AddRow(record.ID, record.StudentID, record.Date, record.Breakfast, record.Lunch, record.Dinner, record.ScannedAt, record.CreatedAt, record.UpdatedAt, inserted)
}

func TestAttendanceRepositoryApplyMarkTargetsOneFlag(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 25, 8, 15, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO attendance_records .*ON CONFLICT \(student_id, date\)\s*DO UPDATE SET lunch = EXCLUDED\.lunch, updated_at = EXCLUDED\.updated_at`).
		WithArgs(sqlmock.AnyArg(), "s1", date, false, true, false, nil, now).
		WillReturnRows(attendanceUpsertRows(models.AttendanceRecord{ID: "r1", StudentID: "s1", Date: date, Lunch: true, CreatedAt: now, UpdatedAt: now}, true))

	record, created, err := repo.ApplyMark(context.Background(), "s1", date, models.MealLunch, true, false, now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, record.Lunch)
	assert.False(t, record.Breakfast)
	assert.Nil(t, record.ScannedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryApplyMarkScanSetsScannedAt(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 25, 8, 15, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO attendance_records .*DO UPDATE SET breakfast = EXCLUDED\.breakfast`).
		WithArgs(sqlmock.AnyArg(), "s1", date, true, false, false, sqlmock.AnyArg(), now).
		WillReturnRows(attendanceUpsertRows(models.AttendanceRecord{ID: "r1", StudentID: "s1", Date: date, Breakfast: true, ScannedAt: &now, CreatedAt: now, UpdatedAt: now}, true))

	record, created, err := repo.ApplyMark(context.Background(), "s1", date, models.MealBreakfast, true, true, now)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, record.ScannedAt)
	assert.Equal(t, now, *record.ScannedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryApplyMarkRejectsUnknownMeal(t *testing.T) {
	db, _, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	_, _, err := repo.ApplyMark(context.Background(), "s1", time.Now(), models.Meal("brunch"), true, false, time.Now())
	assert.Error(t, err)
}

func TestAttendanceRepositoryFindByStudentAndDateMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM attendance_records WHERE student_id").
		WithArgs("s1", date).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	record, err := repo.FindByStudentAndDate(context.Background(), "s1", date)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateFlags(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	yes := true
	no := false

	mock.ExpectQuery(`UPDATE attendance_records SET breakfast = \$1, dinner = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(true, false, now, "r1").
		WillReturnRows(attendanceRows(models.AttendanceRecord{ID: "r1", StudentID: "s1", Breakfast: true, UpdatedAt: now}))

	record, err := repo.UpdateFlags(context.Background(), "r1", models.FlagPatch{Breakfast: &yes, Dinner: &no}, now)
	require.NoError(t, err)
	assert.True(t, record.Breakfast)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("DELETE FROM attendance_records WHERE id").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM attendance_records WHERE id").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
