package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/jobs"
)

type fakeAnnouncementStore struct {
	items map[string]models.Announcement
	next  int
}

func (f *fakeAnnouncementStore) List(_ context.Context, _ int) ([]models.Announcement, error) {
	var out []models.Announcement
	for _, a := range f.items {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAnnouncementStore) FindByID(_ context.Context, id string) (*models.Announcement, error) {
	if a, ok := f.items[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (f *fakeAnnouncementStore) Create(_ context.Context, a *models.Announcement) error {
	f.next++
	a.ID = "a1"
	f.items[a.ID] = *a
	return nil
}

func (f *fakeAnnouncementStore) Update(_ context.Context, a *models.Announcement) error {
	if _, ok := f.items[a.ID]; !ok {
		return sql.ErrNoRows
	}
	f.items[a.ID] = *a
	return nil
}

func (f *fakeAnnouncementStore) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type fakeCache struct {
	values  map[string][]byte
	deleted []string
}

func (f *fakeCache) Get(_ context.Context, key string, _ interface{}) (bool, error) {
	_, ok := f.values[key]
	return ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	f.values[key] = []byte("cached")
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

type fakeQueue struct {
	enqueued []jobs.Job
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	f.enqueued = append(f.enqueued, job)
	return nil
}

func TestPublishQueuesNotificationAndInvalidatesCache(t *testing.T) {
	store := &fakeAnnouncementStore{items: map[string]models.Announcement{}}
	cache := &fakeCache{values: map[string][]byte{announcementsCacheKey: []byte("stale")}}
	queue := &fakeQueue{}
	svc := NewAnnouncementService(store, cache, queue, time.Minute, zap.NewNop())

	a := &models.Announcement{Title: "Menu change", Body: "Dinner moves to 19:30 today", PostedBy: "admin-1"}
	require.NoError(t, svc.Publish(context.Background(), a))

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "announcement.publish", queue.enqueued[0].Type)
	assert.Contains(t, cache.deleted, announcementsCacheKey)
	assert.NotContains(t, cache.values, announcementsCacheKey)
}

func TestPublishRejectsEmptyNotice(t *testing.T) {
	store := &fakeAnnouncementStore{items: map[string]models.Announcement{}}
	svc := NewAnnouncementService(store, nil, nil, 0, zap.NewNop())

	err := svc.Publish(context.Background(), &models.Announcement{Title: "", Body: "x"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, store.items)
}

func TestAnnouncementNotFoundMapping(t *testing.T) {
	store := &fakeAnnouncementStore{items: map[string]models.Announcement{}}
	svc := NewAnnouncementService(store, nil, nil, 0, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	err = svc.Delete(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
