package models

import (
	"strings"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/validation"
)

// RecordInput is what an operator supplies when recording a consent.
type RecordInput struct {
	SubjectID       *id.SubjectID
	SubjectEmail    string
	ConsentType     ConsentType
	Purpose         string
	ConsentGiven    bool
	Method          Method
	ClientSignature string
}

// WithdrawInput captures how a withdrawal was received.
type WithdrawInput struct {
	Method          Method
	ClientSignature string
}

// RecordConsentRequest is the POST /consents body.
type RecordConsentRequest struct {
	SubjectID       string `json:"subject_id" validate:"omitempty,uuid"`
	SubjectEmail    string `json:"subject_email" validate:"required,email"`
	ConsentType     string `json:"consent_type" validate:"required,oneof=marketing analytics data_processing third_party_sharing"`
	Purpose         string `json:"purpose" validate:"max=1000"`
	ConsentGiven    bool   `json:"consent_given"`
	ConsentMethod   string `json:"consent_method" validate:"omitempty,oneof=form email phone in_person website"`
	ClientSignature string `json:"client_signature" validate:"max=2000"`
}

func (r *RecordConsentRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.SubjectEmail = strings.ToLower(strings.TrimSpace(r.SubjectEmail))
	r.ConsentType = strings.ToLower(strings.TrimSpace(r.ConsentType))
	r.Purpose = strings.TrimSpace(r.Purpose)
	r.ConsentMethod = strings.ToLower(strings.TrimSpace(r.ConsentMethod))
}

func (r *RecordConsentRequest) Validate() error {
	return validation.Validate(r)
}

// Input converts the validated body into a service input.
func (r *RecordConsentRequest) Input() (RecordInput, error) {
	in := RecordInput{
		SubjectEmail:    r.SubjectEmail,
		ConsentType:     ConsentType(r.ConsentType),
		Purpose:         r.Purpose,
		ConsentGiven:    r.ConsentGiven,
		Method:          Method(r.ConsentMethod),
		ClientSignature: r.ClientSignature,
	}
	if r.SubjectID != "" {
		subjectID, err := id.ParseSubjectID(r.SubjectID)
		if err != nil {
			return RecordInput{}, err
		}
		in.SubjectID = &subjectID
	}
	return in, nil
}

// WithdrawConsentRequest is the POST /consents/{id}/withdraw body.
type WithdrawConsentRequest struct {
	WithdrawalMethod string `json:"withdrawal_method" validate:"omitempty,oneof=form email phone in_person website"`
	ClientSignature  string `json:"client_signature" validate:"max=2000"`
}

func (r *WithdrawConsentRequest) Normalize() {
	r.WithdrawalMethod = strings.ToLower(strings.TrimSpace(r.WithdrawalMethod))
}

func (r *WithdrawConsentRequest) Validate() error {
	return validation.Validate(r)
}

// ListResponse wraps consent listings.
type ListResponse struct {
	Consents []*Record `json:"consents"`
}
