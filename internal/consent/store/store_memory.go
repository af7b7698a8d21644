package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"compliance/internal/consent/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

// Error Contract:
// - FindByID and Execute return sentinel.ErrNotFound for unknown or foreign-tenant ids
// - Save returns sentinel.ErrConflict when the id already exists
// - Execute returns whatever validate returns, unchanged

// InMemoryStore stores consent records in memory for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.ConsentID]*models.Record
}

func New() *InMemoryStore {
	return &InMemoryStore{consents: make(map[id.ConsentID]*models.Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.consents[record.ID] = copyRecord(record)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, consentID id.ConsentID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.consents[consentID]
	if !ok || record.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(record), nil
}

// ListByTenant returns newest-first records, optionally for one subject email.
func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID, subjectEmail string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Record{}
	for _, record := range s.consents {
		if record.TenantID != tenantID {
			continue
		}
		if subjectEmail != "" && !strings.EqualFold(record.SubjectEmail, subjectEmail) {
			continue
		}
		out = append(out, copyRecord(record))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryStore) CountActive(_ context.Context, tenantID id.TenantID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.consents {
		if record.TenantID == tenantID && record.IsActive() {
			count++
		}
	}
	return count, nil
}

// Execute validates and mutates a record under the store lock.
func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, consentID id.ConsentID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.consents[consentID]
	if !ok || record.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	working := copyRecord(record)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.consents[consentID] = working
	return copyRecord(working), nil
}

func copyRecord(r *models.Record) *models.Record {
	cp := *r
	if r.SubjectID != nil {
		subjectID := *r.SubjectID
		cp.SubjectID = &subjectID
	}
	if r.WithdrawnAt != nil {
		t := *r.WithdrawnAt
		cp.WithdrawnAt = &t
	}
	if r.WithdrawalEvidence != nil {
		ev := *r.WithdrawalEvidence
		cp.WithdrawalEvidence = &ev
	}
	return &cp
}
