package audit

import (
	"strings"
	"time"

	id "compliance/pkg/domain"
)

// ActionType classifies a privacy-relevant mutation.
type ActionType string

const (
	ActionAccessRequest ActionType = "access_request"
	ActionConsent       ActionType = "consent"
	ActionAnonymization ActionType = "anonymization"
	ActionRectification ActionType = "rectification"
)

func (a ActionType) IsValid() bool {
	switch a {
	case ActionAccessRequest, ActionConsent, ActionAnonymization, ActionRectification:
		return true
	}
	return false
}

// Entity names recorded on entries.
const (
	EntityRequest = "data_subject_requests"
	EntityConsent = "consent_records"
	EntitySubject = "subjects"
)

// Values is a JSON object snapshot of fields before or after a mutation.
type Values map[string]any

// Entry is one immutable ledger row. Entries are appended and never edited.
type Entry struct {
	ID           id.AuditEntryID `json:"id"`
	TenantID     id.TenantID     `json:"tenant_id"`
	ActionType   ActionType      `json:"action_type"`
	EntityName   string          `json:"entity_name"`
	RecordID     string          `json:"record_id,omitempty"`
	SubjectEmail string          `json:"subject_email,omitempty"`
	Purpose      string          `json:"purpose,omitempty"`
	OldValues    Values          `json:"old_values,omitempty"`
	NewValues    Values          `json:"new_values,omitempty"`
	ActorID      id.ActorID      `json:"actor_id"`
	RequestID    string          `json:"request_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter narrows a tenant's ledger. Zero fields match everything.
type Filter struct {
	EntityName   string
	SubjectEmail string
	ActionType   ActionType
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Matches applies the filter predicates (not pagination) to one entry.
func (f Filter) Matches(e Entry) bool {
	if f.EntityName != "" && e.EntityName != f.EntityName {
		return false
	}
	if f.SubjectEmail != "" && !strings.EqualFold(e.SubjectEmail, f.SubjectEmail) {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Page is one slice of the ledger plus the total matching the filter.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}
