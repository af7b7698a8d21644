package testutil

import (
	"time"

	"github.com/google/uuid"

	"compliance/internal/subject"
	id "compliance/pkg/domain"
)

// TestIDs provides pre-generated IDs for deterministic test data.
var TestIDs = struct {
	TenantID1 id.TenantID
	TenantID2 id.TenantID
	ActorID1  id.ActorID
	ActorID2  id.ActorID
}{
	TenantID1: id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	TenantID2: id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	ActorID1:  id.ActorID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	ActorID2:  id.ActorID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// TestActor returns an authenticated operator of TenantID1.
func TestActor() id.Actor {
	return id.NewActor(TestIDs.ActorID1, TestIDs.TenantID1)
}

// SubjectBuilder provides a fluent interface for building test subjects.
type SubjectBuilder struct {
	subject *subject.Subject
}

// NewSubjectBuilder creates a subject of TenantID1 with every identifying
// field populated, created three years ago and never accessed.
func NewSubjectBuilder() *SubjectBuilder {
	return &SubjectBuilder{
		subject: &subject.Subject{
			ID:                    id.NewSubjectID(),
			TenantID:              TestIDs.TenantID1,
			Name:                  "Jane",
			SurnameOrBusinessName: "Doe",
			Email:                 "jane-" + uuid.NewString()[:8] + "@acme.com",
			Phone:                 "+34 600 111 222",
			TaxID:                 "12345678Z",
			Address:               "Calle Mayor 1, Madrid",
			CreatedAt:             time.Now().UTC().AddDate(-3, 0, 0).Truncate(time.Microsecond),
		},
	}
}

func (b *SubjectBuilder) WithTenant(tenantID id.TenantID) *SubjectBuilder {
	b.subject.TenantID = tenantID
	return b
}

func (b *SubjectBuilder) WithEmail(email string) *SubjectBuilder {
	b.subject.Email = email
	return b
}

func (b *SubjectBuilder) WithCreatedAt(t time.Time) *SubjectBuilder {
	b.subject.CreatedAt = t
	return b
}

func (b *SubjectBuilder) WithLastAccessedAt(t time.Time) *SubjectBuilder {
	b.subject.LastAccessedAt = &t
	return b
}

func (b *SubjectBuilder) Anonymized(at time.Time) *SubjectBuilder {
	b.subject.AnonymizedAt = &at
	return b
}

// Build returns the constructed subject.
func (b *SubjectBuilder) Build() *subject.Subject {
	return b.subject
}
