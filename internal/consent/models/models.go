package models

import (
	"time"

	id "compliance/pkg/domain"
)

// ConsentType is the processing purpose category a consent covers.
type ConsentType string

const (
	TypeMarketing         ConsentType = "marketing"
	TypeAnalytics         ConsentType = "analytics"
	TypeDataProcessing    ConsentType = "data_processing"
	TypeThirdPartySharing ConsentType = "third_party_sharing"
)

func (t ConsentType) IsValid() bool {
	switch t {
	case TypeMarketing, TypeAnalytics, TypeDataProcessing, TypeThirdPartySharing:
		return true
	}
	return false
}

func (t ConsentType) String() string { return string(t) }

// Method is the channel through which consent was captured or withdrawn.
type Method string

const (
	MethodForm     Method = "form"
	MethodEmail    Method = "email"
	MethodPhone    Method = "phone"
	MethodInPerson Method = "in_person"
	MethodWebsite  Method = "website"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodForm, MethodEmail, MethodPhone, MethodInPerson, MethodWebsite:
		return true
	}
	return false
}

// Record is one consent decision. Rows are never deleted; withdrawal stamps
// WithdrawnAt once and leaves the capture evidence untouched.
type Record struct {
	ID                 id.ConsentID  `json:"id"`
	TenantID           id.TenantID   `json:"tenant_id"`
	SubjectID          *id.SubjectID `json:"subject_id,omitempty"`
	SubjectEmail       string        `json:"subject_email"`
	ConsentType        ConsentType   `json:"consent_type"`
	Purpose            string        `json:"purpose"`
	ConsentGiven       bool          `json:"consent_given"`
	Method             Method        `json:"consent_method"`
	Evidence           Evidence      `json:"consent_evidence"`
	WithdrawnAt        *time.Time    `json:"withdrawn_at"`
	WithdrawalMethod   Method        `json:"withdrawal_method,omitempty"`
	WithdrawalEvidence *Evidence     `json:"withdrawal_evidence,omitempty"`
	CreatedBy          id.ActorID    `json:"created_by"`
	CreatedAt          time.Time     `json:"created_at"`
}

// IsActive reports a given, not withdrawn consent.
func (r *Record) IsActive() bool {
	return r.ConsentGiven && r.WithdrawnAt == nil
}

func (r *Record) IsWithdrawn() bool {
	return r.WithdrawnAt != nil
}
