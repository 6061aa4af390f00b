package recordings

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
	"github.com/aura-webinar/meeting-pipeline/pkg/queue"
)

func init() { gin.SetMode(gin.TestMode) }

type memStore struct {
	mu   sync.Mutex
	rows []*models.Recording
}

func (s *memStore) Upsert(_ context.Context, rec *models.Recording) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TenantID == rec.TenantID && r.ExternalID == rec.ExternalID {
			r.Title = rec.Title
			cp := *r
			return &cp, nil
		}
	}
	row := *rec
	row.ID = uuid.New()
	row.Status = models.StatusPending
	s.rows = append(s.rows, &row)
	cp := row
	return &cp, nil
}

func (s *memStore) find(match func(*models.Recording) bool) (*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if match(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Get(_ context.Context, tenantID, id uuid.UUID) (*models.Recording, error) {
	return s.find(func(r *models.Recording) bool { return r.TenantID == tenantID && r.ID == id })
}

func (s *memStore) GetByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (*models.Recording, error) {
	return s.find(func(r *models.Recording) bool { return r.TenantID == tenantID && r.ExternalID == externalID })
}

func (s *memStore) List(_ context.Context, tenantID uuid.UUID, f ListFilter) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Recording
	for _, r := range s.rows {
		if r.TenantID == tenantID && (f.Status == "" || r.Status == f.Status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) add(rec models.Recording) *models.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	s.rows = append(s.rows, &rec)
	return &rec
}

type fakeTenants struct {
	byID    map[uuid.UUID]*models.Tenant
	clients []models.ClientURL
	err     error
}

func (f *fakeTenants) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func (f *fakeTenants) GetByZoomAccount(_ context.Context, accountID string) (*models.Tenant, error) {
	for _, t := range f.byID {
		if accountID != "" && t.ZoomAccountID == accountID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTenants) ClientURLs(_ context.Context, tenantID uuid.UUID) ([]models.ClientURL, error) {
	return f.clients, nil
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewQueue(client, nil)
}
