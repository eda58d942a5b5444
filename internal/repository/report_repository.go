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

const reportColumns = "id, date, format, status, file_path, error_message, created_at, finished_at"

// ReportRepository tracks export job lifecycle rows.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a queued job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	job.CreatedAt = time.Now().UTC()
	query := `INSERT INTO report_jobs (id, date, format, status, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.Date, job.Format, job.Status, job.CreatedAt); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job, or nil when absent.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf("SELECT %s FROM report_jobs WHERE id = $1", reportColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find report job: %w", err)
	}
	return &job, nil
}

// UpdateReportJobParams carries the optional fields of a status transition.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	FilePath     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies a partial status transition.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
