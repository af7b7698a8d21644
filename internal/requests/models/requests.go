package models

import (
	"strings"

	"compliance/internal/subject"
	"compliance/pkg/platform/validation"
)

// CreateInput is what an operator supplies when logging a request.
type CreateInput struct {
	Type               RequestType
	SubjectEmail       string
	SubjectName        string
	SubjectIdentifier  string
	Details            string
	VerificationMethod string
}

// CreateRequestBody is the POST /requests body.
type CreateRequestBody struct {
	RequestType        string `json:"request_type" validate:"required,oneof=access rectification erasure portability restriction objection"`
	SubjectEmail       string `json:"subject_email" validate:"required,email"`
	SubjectName        string `json:"subject_name" validate:"max=255"`
	SubjectIdentifier  string `json:"subject_identifier" validate:"max=255"`
	RequestDetails     string `json:"request_details" validate:"max=20000"`
	VerificationMethod string `json:"verification_method" validate:"max=255"`
}

func (r *CreateRequestBody) Normalize() {
	r.RequestType = strings.ToLower(strings.TrimSpace(r.RequestType))
	r.SubjectEmail = strings.ToLower(strings.TrimSpace(r.SubjectEmail))
	r.SubjectName = strings.TrimSpace(r.SubjectName)
	r.SubjectIdentifier = strings.TrimSpace(r.SubjectIdentifier)
	r.VerificationMethod = strings.TrimSpace(r.VerificationMethod)
}

func (r *CreateRequestBody) Validate() error {
	return validation.Validate(r)
}

func (r *CreateRequestBody) Input() CreateInput {
	return CreateInput{
		Type:               RequestType(r.RequestType),
		SubjectEmail:       r.SubjectEmail,
		SubjectName:        r.SubjectName,
		SubjectIdentifier:  r.SubjectIdentifier,
		Details:            r.RequestDetails,
		VerificationMethod: r.VerificationMethod,
	}
}

// UpdateStatusBody is the PATCH /requests/{id}/status body.
type UpdateStatusBody struct {
	Status string `json:"status" validate:"required,oneof=verified rejected in_progress completed"`
}

func (r *UpdateStatusBody) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *UpdateStatusBody) Validate() error {
	return validation.Validate(r)
}

// ParseBody is the POST /rectification/parse body.
type ParseBody struct {
	Description string `json:"description" validate:"max=20000"`
}

func (r *ParseBody) Validate() error {
	return validation.Validate(r)
}

// ListResponse wraps request listings.
type ListResponse struct {
	Requests []*Request `json:"requests"`
}

// RectificationResult describes what an apply wrote to the subject record.
// Changed is empty when the description held nothing to apply.
type RectificationResult struct {
	RequestID string            `json:"request_id"`
	SubjectID string            `json:"subject_id,omitempty"`
	Changed   map[string]string `json:"changed"`
	Previous  map[string]string `json:"previous,omitempty"`
}

// ParseResponse lists the fields a description would change.
type ParseResponse struct {
	NoChanges bool                     `json:"no_changes"`
	Changes   map[subject.Field]string `json:"changes"`
}

// SatisfiedResponse reports whether the subject already holds the requested values.
type SatisfiedResponse struct {
	RequestID string `json:"request_id"`
	Satisfied bool   `json:"satisfied"`
}
