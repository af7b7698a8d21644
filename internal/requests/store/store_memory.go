package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"compliance/internal/requests/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in memory for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
}

func New() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemoryStore) Save(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok || req.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(req), nil
}

// ListByTenant returns the tenant's requests newest-first.
func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Request{}
	for _, req := range s.requests {
		if req.TenantID == tenantID {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryStore) CountAll(_ context.Context, tenantID id.TenantID) (int, error) {
	return s.count(tenantID, func(*models.Request) bool { return true }), nil
}

func (s *InMemoryStore) CountPending(_ context.Context, tenantID id.TenantID) (int, error) {
	return s.count(tenantID, (*models.Request).IsPending), nil
}

func (s *InMemoryStore) CountOverdue(_ context.Context, tenantID id.TenantID, now time.Time) (int, error) {
	return s.count(tenantID, func(r *models.Request) bool { return r.IsOverdue(now) }), nil
}

func (s *InMemoryStore) count(tenantID id.TenantID, match func(*models.Request) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, req := range s.requests {
		if req.TenantID == tenantID && match(req) {
			n++
		}
	}
	return n
}

// Execute validates and mutates a request under the store lock.
func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok || req.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	working := copyRequest(req)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.requests[requestID] = working
	return copyRequest(working), nil
}

func copyRequest(r *models.Request) *models.Request {
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
