package models

import (
	"strings"
	"time"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
)

// RequestType is the privacy right being exercised.
type RequestType string

const (
	TypeAccess        RequestType = "access"
	TypeRectification RequestType = "rectification"
	TypeErasure       RequestType = "erasure"
	TypePortability   RequestType = "portability"
	TypeRestriction   RequestType = "restriction"
	TypeObjection     RequestType = "objection"
)

func (t RequestType) IsValid() bool {
	switch t {
	case TypeAccess, TypeRectification, TypeErasure, TypePortability, TypeRestriction, TypeObjection:
		return true
	}
	return false
}

const (
	StandardDeadline    = 30 * 24 * time.Hour
	PortabilityDeadline = 90 * 24 * time.Hour
)

// Deadline is the response window for the request type.
func (t RequestType) Deadline() time.Duration {
	if t == TypePortability {
		return PortabilityDeadline
	}
	return StandardDeadline
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type ProcessingStatus string

const (
	ProcessingReceived   ProcessingStatus = "received"
	ProcessingInProgress ProcessingStatus = "in_progress"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingRejected   ProcessingStatus = "rejected"
)

func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingCompleted || s == ProcessingRejected
}

// Target is the value accepted by a status update. verified and rejected act
// on verification, in_progress and completed on processing.
type Target string

const (
	TargetVerified   Target = "verified"
	TargetRejected   Target = "rejected"
	TargetInProgress Target = "in_progress"
	TargetCompleted  Target = "completed"
)

func (t Target) IsValid() bool {
	switch t {
	case TargetVerified, TargetRejected, TargetInProgress, TargetCompleted:
		return true
	}
	return false
}

// Request is a data subject request. Rows are never deleted.
type Request struct {
	ID                 id.RequestID       `json:"id"`
	TenantID           id.TenantID        `json:"tenant_id"`
	Type               RequestType        `json:"request_type"`
	SubjectEmail       string             `json:"subject_email"`
	SubjectName        string             `json:"subject_name,omitempty"`
	SubjectIdentifier  string             `json:"subject_identifier,omitempty"`
	Details            string             `json:"request_details"`
	VerificationMethod string             `json:"verification_method,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	ProcessingStatus   ProcessingStatus   `json:"processing_status"`
	DeadlineDate       time.Time          `json:"deadline_date"`
	CreatedBy          id.ActorID         `json:"created_by"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
}

// NewRequest builds a received, unverified request with its deadline set.
func NewRequest(tenantID id.TenantID, actorID id.ActorID, in CreateInput, now time.Time) (*Request, error) {
	email := strings.ToLower(strings.TrimSpace(in.SubjectEmail))
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_email is required")
	}
	if in.Type == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "request_type is required")
	}
	if !in.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "request_type is invalid")
	}
	return &Request{
		ID:                 id.NewRequestID(),
		TenantID:           tenantID,
		Type:               in.Type,
		SubjectEmail:       email,
		SubjectName:        strings.TrimSpace(in.SubjectName),
		SubjectIdentifier:  strings.TrimSpace(in.SubjectIdentifier),
		Details:            in.Details,
		VerificationMethod: strings.TrimSpace(in.VerificationMethod),
		VerificationStatus: VerificationPending,
		ProcessingStatus:   ProcessingReceived,
		DeadlineDate:       now.Add(in.Type.Deadline()),
		CreatedBy:          actorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CanTransition reports whether target may be applied in the current state.
func (r *Request) CanTransition(target Target) error {
	if r.ProcessingStatus.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, "request is already "+string(r.ProcessingStatus))
	}
	switch target {
	case TargetVerified:
		if r.VerificationStatus != VerificationPending {
			return dErrors.New(dErrors.CodeInvalidTransition, "verification is already "+string(r.VerificationStatus))
		}
	case TargetRejected:
		// received and in_progress may both be rejected
	case TargetInProgress:
		if r.ProcessingStatus != ProcessingReceived {
			return dErrors.New(dErrors.CodeInvalidTransition, "only received requests can start processing")
		}
	case TargetCompleted:
		if r.ProcessingStatus != ProcessingInProgress {
			return dErrors.New(dErrors.CodeInvalidTransition, "only in_progress requests can be completed")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "status is invalid")
	}
	return nil
}

// Transition applies target after CanTransition has passed.
// Rejection closes both verification and processing.
func (r *Request) Transition(target Target, now time.Time) {
	switch target {
	case TargetVerified:
		r.VerificationStatus = VerificationVerified
	case TargetRejected:
		r.VerificationStatus = VerificationRejected
		r.ProcessingStatus = ProcessingRejected
	case TargetInProgress:
		r.ProcessingStatus = ProcessingInProgress
	case TargetCompleted:
		r.ProcessingStatus = ProcessingCompleted
		r.CompletedAt = &now
	}
	r.UpdatedAt = now
}

// IsPending is true while processing has not started or is under way.
func (r *Request) IsPending() bool {
	return r.ProcessingStatus == ProcessingReceived || r.ProcessingStatus == ProcessingInProgress
}

// IsOverdue is true past the deadline unless processing completed.
func (r *Request) IsOverdue(now time.Time) bool {
	return r.DeadlineDate.Before(now) && r.ProcessingStatus != ProcessingCompleted
}

func (r *Request) IsRectification() bool  { return r.Type == TypeRectification }
func (r *Request) IsCompleted() bool      { return r.ProcessingStatus == ProcessingCompleted }
func (r *Request) RequestDetails() string { return r.Details }

// StatusSnapshot is the audit view of the status columns.
func (r *Request) StatusSnapshot() map[string]any {
	out := map[string]any{
		"verification_status": string(r.VerificationStatus),
		"processing_status":   string(r.ProcessingStatus),
	}
	if r.CompletedAt != nil {
		out["completed_at"] = *r.CompletedAt
	}
	return out
}
