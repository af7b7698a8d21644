package audit

import (
	"context"
	"sort"
	"sync"

	id "compliance/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List returns matching entries newest-first. Entries sharing a timestamp keep
// reverse insertion order.
func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error) {
	matched := s.matching(tenantID, filter)
	if filter.Offset >= len(matched) {
		return []Entry{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) Count(_ context.Context, tenantID id.TenantID, filter Filter) (int, error) {
	return len(s.matching(tenantID, filter)), nil
}

// All returns every entry in insertion order. Test helper.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...)
}

func (s *InMemoryStore) matching(tenantID id.TenantID, filter Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.TenantID != tenantID || !filter.Matches(e) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
