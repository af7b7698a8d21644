package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	consentModels "compliance/internal/consent/models"
	requestModels "compliance/internal/requests/models"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
)

// SubjectStore defines methods for seeding subjects
type SubjectStore interface {
	Create(ctx context.Context, s *subject.Subject) error
}

// ConsentRecorder records consents through the ledger so audit entries exist
type ConsentRecorder interface {
	RecordConsent(ctx context.Context, actor id.Actor, in consentModels.RecordInput) (*consentModels.Record, error)
}

// RequestCreator opens requests through the registry so audit entries exist
type RequestCreator interface {
	CreateRequest(ctx context.Context, actor id.Actor, in requestModels.CreateInput) (*requestModels.Request, error)
}

// Seeder populates a tenant with demo data
type Seeder struct {
	subjects SubjectStore
	consents ConsentRecorder
	requests RequestCreator
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new seeder
func New(subjects SubjectStore, consents ConsentRecorder, requests RequestCreator, logger *slog.Logger) *Seeder {
	return &Seeder{
		subjects: subjects,
		consents: consents,
		requests: requests,
		logger:   logger,
		now:      time.Now,
	}
}

// Summary counts what SeedAll created.
type Summary struct {
	Subjects   int
	Candidates int
	Consents   int
	Requests   int
}

// SeedAll populates the actor's tenant with subjects, consents and requests.
func (s *Seeder) SeedAll(ctx context.Context, actor id.Actor) (*Summary, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "seeding demo data...", "tenant_id", actor.TenantID.String())

	summary := &Summary{}
	subjects, err := s.seedSubjects(ctx, actor.TenantID, summary)
	if err != nil {
		return nil, fmt.Errorf("failed to seed subjects: %w", err)
	}
	if err := s.seedConsents(ctx, actor, subjects, summary); err != nil {
		return nil, fmt.Errorf("failed to seed consents: %w", err)
	}
	if err := s.seedRequests(ctx, actor, subjects, summary); err != nil {
		return nil, fmt.Errorf("failed to seed requests: %w", err)
	}

	s.logger.InfoContext(ctx, "demo data seeded successfully",
		"tenant_id", actor.TenantID.String(),
		"subjects", summary.Subjects,
		"candidates", summary.Candidates,
		"consents", summary.Consents,
		"requests", summary.Requests,
	)
	return summary, nil
}

func (s *Seeder) seedSubjects(ctx context.Context, tenantID id.TenantID, summary *Summary) ([]*subject.Subject, error) {
	now := s.now().UTC()

	// Ages are in months; lastAccess is months ago, 0 meaning never.
	demoSubjects := []struct {
		name, surname, email, phone string
		ageMonths, lastAccessMonths int
	}{
		{"Alice", "Anderson", "alice@example.com", "+34 600 000 001", 40, 30},
		{"Bob", "Brown", "bob@example.com", "+34 600 000 002", 36, 0},
		{"Charlie", "Chen", "charlie@example.com", "", 30, 2},
		{"Diana", "Davis", "diana@example.com", "+34 600 000 004", 12, 0},
		{"Eve", "Evans", "eve@example.com", "", 3, 0},
		{"Frank", "Foster", "frank@example.com", "+34 600 000 006", 50, 26},
		{"Grace", "Garcia", "grace@example.com", "", 8, 1},
		{"Henry", "Harris", "henry@example.com", "+34 600 000 008", 1, 0},
	}

	createdBefore, lastAccessBefore := now.AddDate(0, -6, 0), now.AddDate(-2, 0, 0)

	var out []*subject.Subject
	for _, d := range demoSubjects {
		sub := &subject.Subject{
			ID:                    id.NewSubjectID(),
			TenantID:              tenantID,
			Name:                  d.name,
			SurnameOrBusinessName: d.surname,
			Email:                 d.email,
			Phone:                 d.phone,
			Address:               "Calle Mayor 1, Madrid",
			CreatedAt:             now.AddDate(0, -d.ageMonths, 0),
		}
		if d.lastAccessMonths > 0 {
			accessed := now.AddDate(0, -d.lastAccessMonths, 0)
			sub.LastAccessedAt = &accessed
		}
		if err := s.subjects.Create(ctx, sub); err != nil {
			return nil, err
		}
		summary.Subjects++
		if sub.Qualifies(createdBefore, lastAccessBefore) {
			summary.Candidates++
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Seeder) seedConsents(ctx context.Context, actor id.Actor, subjects []*subject.Subject, summary *Summary) error {
	consents := []struct {
		subjectIdx int
		kind       consentModels.ConsentType
		purpose    string
		given      bool
		method     consentModels.Method
	}{
		{0, consentModels.TypeMarketing, "newsletter", true, consentModels.MethodWebsite},
		{0, consentModels.TypeAnalytics, "product analytics", false, consentModels.MethodWebsite},
		{1, consentModels.TypeDataProcessing, "service delivery", true, consentModels.MethodForm},
		{3, consentModels.TypeThirdPartySharing, "partner offers", true, consentModels.MethodEmail},
		{4, consentModels.TypeMarketing, "newsletter", true, consentModels.MethodPhone},
		{6, consentModels.TypeAnalytics, "product analytics", true, consentModels.MethodWebsite},
	}

	for _, c := range consents {
		if c.subjectIdx >= len(subjects) {
			continue
		}
		sub := subjects[c.subjectIdx]
		subjectID := sub.ID
		if _, err := s.consents.RecordConsent(ctx, actor, consentModels.RecordInput{
			SubjectID:    &subjectID,
			SubjectEmail: sub.Email,
			ConsentType:  c.kind,
			Purpose:      c.purpose,
			ConsentGiven: c.given,
			Method:       c.method,
		}); err != nil {
			return err
		}
		summary.Consents++
	}
	return nil
}

func (s *Seeder) seedRequests(ctx context.Context, actor id.Actor, subjects []*subject.Subject, summary *Summary) error {
	requests := []struct {
		subjectIdx int
		kind       requestModels.RequestType
		details    string
	}{
		{1, requestModels.TypeAccess, "Copy of all personal data held"},
		{2, requestModels.TypeRectification, "- Email: Valor actual \"charlie@example.com\" => Nuevo valor \"charlie.chen@example.com\""},
		{3, requestModels.TypeErasure, "Close my account and delete my data"},
		{5, requestModels.TypePortability, "Export in a machine-readable format"},
	}

	for _, r := range requests {
		if r.subjectIdx >= len(subjects) {
			continue
		}
		sub := subjects[r.subjectIdx]
		if _, err := s.requests.CreateRequest(ctx, actor, requestModels.CreateInput{
			Type:         r.kind,
			SubjectEmail: sub.Email,
			SubjectName:  sub.Name + " " + sub.SurnameOrBusinessName,
			Details:      r.details,
		}); err != nil {
			return err
		}
		summary.Requests++
	}
	return nil
}
