package subject

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

// InMemoryDirectory keeps subjects in memory for tests and local runs.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*Subject
	// failOn makes UpdateFields fail for specific subjects. Test hook.
	failOn map[id.SubjectID]error
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		subjects: make(map[id.SubjectID]*Subject),
		failOn:   make(map[id.SubjectID]error),
	}
}

func (d *InMemoryDirectory) Create(_ context.Context, s *Subject) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.subjects[s.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *s
	d.subjects[s.ID] = &cp
	return nil
}

func (d *InMemoryDirectory) GetByID(_ context.Context, subjectID id.SubjectID) (*Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetByEmail returns the oldest tenant subject with the address.
func (d *InMemoryDirectory) GetByEmail(_ context.Context, tenantID id.TenantID, email string) (*Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	want := normalizeEmail(email)
	var found *Subject
	for _, s := range d.subjects {
		if s.TenantID != tenantID || normalizeEmail(s.Email) != want {
			continue
		}
		if found == nil || s.CreatedAt.Before(found.CreatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// UpdateFields applies a partial update atomically. Writing anonymized_at to
// an already anonymized record fails with ErrAlreadyAnonymized.
func (d *InMemoryDirectory) UpdateFields(_ context.Context, subjectID id.SubjectID, fields Fields) (*Subject, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := d.failOn[subjectID]; err != nil {
		return nil, err
	}
	if _, stamping := fields[FieldAnonymizedAt]; stamping && s.AnonymizedAt != nil {
		return nil, sentinel.ErrAlreadyAnonymized
	}
	updated := *s
	updated.apply(fields)
	d.subjects[subjectID] = &updated
	cp := updated
	return &cp, nil
}

func (d *InMemoryDirectory) ListCandidates(_ context.Context, tenantID id.TenantID, createdBefore, lastAccessBefore time.Time) ([]*Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Subject
	for _, s := range d.subjects {
		if s.TenantID != tenantID || s.AnonymizedAt != nil {
			continue
		}
		if !s.CreatedAt.Before(createdBefore) {
			continue
		}
		if s.LastAccessedAt != nil && !s.LastAccessedAt.Before(lastAccessBefore) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FailUpdatesFor makes every later UpdateFields call for subjectID return err.
func (d *InMemoryDirectory) FailUpdatesFor(subjectID id.SubjectID, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOn[subjectID] = err
}

func validateFields(fields Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}
	for f := range fields {
		if !f.IsValid() {
			return fmt.Errorf("unknown subject field %q", f)
		}
	}
	return nil
}
