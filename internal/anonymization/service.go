// Package anonymization irreversibly replaces a subject's identifying fields
// with opaque tokens. It is the only writer of anonymized_at.
package anonymization

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"compliance/internal/audit"
	"compliance/internal/platform/privacy"
	"compliance/internal/platform/tracer"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Directory

// Directory is the subject directory surface anonymization needs.
// Error Contract:
// - GetByID returns sentinel.ErrNotFound for unknown subjects
// - UpdateFields returns sentinel.ErrAlreadyAnonymized when anonymized_at is
//   already set at write time, and leaves the row untouched on any error
type Directory interface {
	GetByID(ctx context.Context, subjectID id.SubjectID) (*subject.Subject, error)
	UpdateFields(ctx context.Context, subjectID id.SubjectID, fields subject.Fields) (*subject.Subject, error)
}

// Result reports one anonymization attempt.
type Result struct {
	SubjectID    id.SubjectID `json:"subject_id"`
	Success      bool         `json:"success"`
	AnonymizedAt *time.Time   `json:"anonymized_at,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ScrubbedFields lists every column an anonymization overwrites.
var ScrubbedFields = []subject.Field{
	subject.FieldName,
	subject.FieldSurname,
	subject.FieldEmail,
	subject.FieldPhone,
	subject.FieldTaxID,
	subject.FieldAnonymizedAt,
}

type Option func(*Service)

type Service struct {
	directory Directory
	auditor   *audit.Publisher
	metrics   *Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
	newToken  func() (string, error)
}

func NewService(directory Directory, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		directory: directory,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer.NewNoop(),
		newToken:  privacy.NewToken,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithTokenSource replaces the random token generator.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newToken = fn
	}
}

// Anonymize scrubs one subject. A subject that is already anonymized is left
// untouched and reported with AlreadyAnonymized. The directory write is
// all-or-nothing; one audit entry follows a successful write.
func (s *Service) Anonymize(ctx context.Context, actor id.Actor, subjectID id.SubjectID, reason string) (result *Result, err error) {
	start := time.Now()
	result = &Result{SubjectID: subjectID}

	ctx, span := s.tracer.Start(ctx, tracer.SpanAnonymize,
		tracer.String(tracer.AttrTenantID, actor.TenantID.String()),
		tracer.String(tracer.AttrSubjectID, subjectID.String()),
	)
	defer func() {
		outcome := OutcomeAnonymized
		if err != nil {
			result.Error = err.Error()
			outcome = OutcomeFailed
			if dErrors.HasCode(err, dErrors.CodeAlreadyAnonymized) {
				outcome = OutcomeAlreadyAnonymized
			}
		}
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
		if s.metrics != nil {
			s.metrics.IncrementOutcome(outcome)
			s.metrics.ObserveLatency(time.Since(start).Seconds())
		}
	}()

	if err = actor.Authenticate(); err != nil {
		return result, err
	}
	if subjectID.IsNil() {
		return result, dErrors.New(dErrors.CodeValidation, "subject id is required")
	}

	subj, err := s.directory.GetByID(ctx, subjectID)
	if err != nil {
		return result, translateDirectoryErr(err, "failed to load subject")
	}
	if subj.TenantID != actor.TenantID {
		return result, dErrors.New(dErrors.CodeNotFound, "subject not found")
	}
	if subj.IsAnonymized() {
		result.AnonymizedAt = subj.AnonymizedAt
		return result, dErrors.New(dErrors.CodeAlreadyAnonymized, "subject is already anonymized")
	}

	fields, err := s.scrubFields(requestcontext.Now(ctx))
	if err != nil {
		return result, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate anonymization tokens")
	}
	updated, err := s.directory.UpdateFields(ctx, subjectID, fields)
	if err != nil {
		return result, translateDirectoryErr(err, "failed to anonymize subject")
	}

	result.Success = true
	result.AnonymizedAt = updated.AnonymizedAt

	s.emitAudit(ctx, audit.Entry{
		TenantID:   actor.TenantID,
		ActionType: audit.ActionAnonymization,
		EntityName: audit.EntitySubject,
		RecordID:   subjectID.String(),
		Purpose:    strings.TrimSpace(reason),
		OldValues:  audit.Values{"anonymized_at": nil},
		NewValues: audit.Values{
			"anonymized_at": updated.AnonymizedAt,
			"fields":        fieldNames(ScrubbedFields),
		},
		ActorID: actor.ID,
	})
	s.logger.InfoContext(ctx, "subject anonymized",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID.String(),
		"tenant_id", actor.TenantID.String(),
	)
	return result, nil
}

// IsAnonymized reports whether a subject no longer carries identity data.
func IsAnonymized(s *subject.Subject) bool {
	return s.IsAnonymized()
}

func (s *Service) scrubFields(now time.Time) (subject.Fields, error) {
	nameToken, err := s.newToken()
	if err != nil {
		return nil, err
	}
	surnameToken, err := s.newToken()
	if err != nil {
		return nil, err
	}
	emailToken, err := s.newToken()
	if err != nil {
		return nil, err
	}
	return subject.Fields{
		subject.FieldName:         privacy.AnonymizedName(nameToken),
		subject.FieldSurname:      privacy.AnonymizedName(surnameToken),
		subject.FieldEmail:        privacy.AnonymizedEmail(emailToken),
		subject.FieldPhone:        nil,
		subject.FieldTaxID:        nil,
		subject.FieldAnonymizedAt: now,
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry",
			"error", err,
			"action_type", string(entry.ActionType),
			"record_id", entry.RecordID,
		)
	}
}

func translateDirectoryErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "subject not found")
	case errors.Is(err, sentinel.ErrAlreadyAnonymized):
		return dErrors.New(dErrors.CodeAlreadyAnonymized, "subject is already anonymized")
	default:
		return dErrors.Wrap(err, dErrors.CodeStore, msg)
	}
}

func fieldNames(fields []subject.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
