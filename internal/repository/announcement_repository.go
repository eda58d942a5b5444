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

const announcementColumns = "id, title, body, posted_by, created_at, updated_at"

// AnnouncementRepository handles persistence for mess notices.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements newest first.
func (r *AnnouncementRepository) List(ctx context.Context, limit int) ([]models.Announcement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM announcements ORDER BY created_at DESC LIMIT %d", announcementColumns, limit)
	var rows []models.Announcement
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return rows, nil
}

// FindByID returns an announcement, or nil when absent.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf("SELECT %s FROM announcements WHERE id = $1", announcementColumns)
	var row models.Announcement
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find announcement: %w", err)
	}
	return &row, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, a *models.Announcement) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	query := `INSERT INTO announcements (id, title, body, posted_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.Title, a.Body, a.PostedBy, a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update rewrites title and body.
func (r *AnnouncementRepository) Update(ctx context.Context, a *models.Announcement) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"UPDATE announcements SET title = $2, body = $3, updated_at = $4 WHERE id = $1",
		a.ID, a.Title, a.Body, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
