package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/jobs"
)

const announcementsCacheKey = "announcements:recent"

type announcementStore interface {
	List(ctx context.Context, limit int) ([]models.Announcement, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, a *models.Announcement) error
	Update(ctx context.Context, a *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type enqueuer interface {
	Enqueue(job jobs.Job) error
}

// AnnouncementService manages mess notices. The recent list is the hottest
// read in the student app, so it is cached; every write invalidates it.
// Publishing also enqueues a notification job so delivery happens off the
// request path.
type AnnouncementService struct {
	store    announcementStore
	cache    statsCache
	notify   enqueuer
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAnnouncementService constructs the service. Cache and notify may be nil.
func NewAnnouncementService(store announcementStore, cache statsCache, notify enqueuer, cacheTTL time.Duration, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AnnouncementService{store: store, cache: cache, notify: notify, cacheTTL: cacheTTL, logger: logger}
}

// List returns recent announcements, newest first.
func (s *AnnouncementService) List(ctx context.Context, limit int) ([]models.Announcement, error) {
	if s.cache != nil && limit <= 0 {
		var cached []models.Announcement
		if hit, err := s.cache.Get(ctx, announcementsCacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}
	list, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, storageError(err, "failed to list announcements")
	}
	if s.cache != nil && limit <= 0 {
		if err := s.cache.Set(ctx, announcementsCacheKey, list, s.cacheTTL); err != nil {
			s.logger.Warn("announcement cache write failed", zap.Error(err))
		}
	}
	return list, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load announcement")
	}
	if a == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	return a, nil
}

// Publish stores a new announcement and queues its notification fan-out.
func (s *AnnouncementService) Publish(ctx context.Context, a *models.Announcement) error {
	if a.Title == "" || a.Body == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title and body required")
	}
	if err := s.store.Create(ctx, a); err != nil {
		return storageError(err, "failed to create announcement")
	}
	s.invalidate(ctx)

	if s.notify != nil {
		err := s.notify.Enqueue(jobs.Job{
			ID:      a.ID,
			Type:    "announcement.publish",
			Payload: a,
		})
		if err != nil {
			// The announcement is stored; dropping the push is recoverable.
			s.logger.Warn("announcement notification enqueue failed",
				zap.String("announcement_id", a.ID), zap.Error(err))
		}
	}
	return nil
}

// Update rewrites an announcement's title and body.
func (s *AnnouncementService) Update(ctx context.Context, a *models.Announcement) error {
	if a.Title == "" || a.Body == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title and body required")
	}
	if err := s.store.Update(ctx, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return storageError(err, "failed to update announcement")
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return storageError(err, "failed to delete announcement")
	}
	s.invalidate(ctx)
	return nil
}

func (s *AnnouncementService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, announcementsCacheKey); err != nil {
		s.logger.Warn("announcement cache invalidation failed", zap.Error(err))
	}
}
