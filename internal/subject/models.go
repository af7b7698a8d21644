// Package subject adapts the CRM's subject records (the people whose personal
// data the tenant holds). The compliance services only read and write the
// field subset declared here.
package subject

import (
	"strings"
	"time"

	"compliance/internal/platform/privacy"
	id "compliance/pkg/domain"
)

// Field names a writable subject column.
type Field string

const (
	FieldName         Field = "name"
	FieldSurname      Field = "surname_or_business_name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldTaxID        Field = "tax_id"
	FieldAddress      Field = "address"
	FieldAnonymizedAt Field = "anonymized_at"
)

func (f Field) IsValid() bool {
	switch f {
	case FieldName, FieldSurname, FieldEmail, FieldPhone, FieldTaxID, FieldAddress, FieldAnonymizedAt:
		return true
	}
	return false
}

// Fields is a partial update. A nil value clears the column.
type Fields map[Field]any

// Subject is the external subject record.
type Subject struct {
	ID                    id.SubjectID `json:"id"`
	TenantID              id.TenantID  `json:"tenant_id"`
	Name                  string       `json:"name"`
	SurnameOrBusinessName string       `json:"surname_or_business_name"`
	Email                 string       `json:"email"`
	Phone                 string       `json:"phone,omitempty"`
	TaxID                 string       `json:"tax_id,omitempty"`
	Address               string       `json:"address,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	LastAccessedAt        *time.Time   `json:"last_accessed_at,omitempty"`
	AnonymizedAt          *time.Time   `json:"anonymized_at,omitempty"`
}

// IsAnonymized is true once anonymized_at is set. The placeholder checks only
// exist for rows scrubbed before the column was introduced.
func (s *Subject) IsAnonymized() bool {
	if s.AnonymizedAt != nil {
		return true
	}
	return privacy.LooksAnonymized(s.Name, s.Email)
}

// Value returns the textual value of a field, empty when unset.
func (s *Subject) Value(f Field) string {
	switch f {
	case FieldName:
		return s.Name
	case FieldSurname:
		return s.SurnameOrBusinessName
	case FieldEmail:
		return s.Email
	case FieldPhone:
		return s.Phone
	case FieldTaxID:
		return s.TaxID
	case FieldAddress:
		return s.Address
	case FieldAnonymizedAt:
		if s.AnonymizedAt != nil {
			return s.AnonymizedAt.Format(time.RFC3339)
		}
	}
	return ""
}

// Snapshot returns the current values of the given fields for audit diffs.
func (s *Subject) Snapshot(fields ...Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[string(f)] = s.Value(f)
	}
	return out
}

// apply writes fields onto the record in place.
func (s *Subject) apply(fields Fields) {
	for f, v := range fields {
		str, _ := v.(string)
		switch f {
		case FieldName:
			s.Name = str
		case FieldSurname:
			s.SurnameOrBusinessName = str
		case FieldEmail:
			s.Email = str
		case FieldPhone:
			s.Phone = str
		case FieldTaxID:
			s.TaxID = str
		case FieldAddress:
			s.Address = str
		case FieldAnonymizedAt:
			if t, ok := v.(time.Time); ok {
				s.AnonymizedAt = &t
			} else {
				s.AnonymizedAt = nil
			}
		}
	}
}

// Qualifies reports whether the record is an inactivity anonymization
// candidate: created before createdBefore, not accessed since
// lastAccessBefore, and not yet anonymized.
func (s *Subject) Qualifies(createdBefore, lastAccessBefore time.Time) bool {
	if s.IsAnonymized() {
		return false
	}
	if !s.CreatedAt.Before(createdBefore) {
		return false
	}
	return s.LastAccessedAt == nil || s.LastAccessedAt.Before(lastAccessBefore)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
