package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"compliance/internal/audit"
	"compliance/internal/consent/metrics"
	"compliance/internal/consent/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store defines the persistence interface for consent records.
// Error Contract:
// - FindByID and Execute return sentinel.ErrNotFound when no record exists in the tenant
// - Execute returns the validate error unchanged
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Save(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, tenantID id.TenantID, consentID id.ConsentID) (*models.Record, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID, subjectEmail string) ([]*models.Record, error)
	CountActive(ctx context.Context, tenantID id.TenantID) (int, error)
	Execute(ctx context.Context, tenantID id.TenantID, consentID id.ConsentID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)
}

type Option func(*Service)

// Service records and withdraws consent decisions. Every successful mutation
// appends one audit entry.
type Service struct {
	store   Store
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store Store, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func (s *Service) RecordConsent(ctx context.Context, actor id.Actor, in models.RecordInput) (*models.Record, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRecordLatency(time.Since(start).Seconds())
		}
	}()

	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.SubjectEmail))
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_email is required")
	}
	if in.ConsentType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_type is required")
	}
	if !in.ConsentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_type is invalid")
	}
	method := in.Method
	if method == "" {
		method = models.MethodForm
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_method is invalid")
	}

	record := &models.Record{
		ID:           id.NewConsentID(),
		TenantID:     actor.TenantID,
		SubjectID:    in.SubjectID,
		SubjectEmail: email,
		ConsentType:  in.ConsentType,
		Purpose:      strings.TrimSpace(in.Purpose),
		ConsentGiven: in.ConsentGiven,
		Method:       method,
		Evidence:     models.CaptureEvidence(ctx, in.ClientSignature),
		CreatedBy:    actor.ID,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to save consent")
	}

	s.emitAudit(ctx, audit.Entry{
		TenantID:     actor.TenantID,
		ActionType:   audit.ActionConsent,
		EntityName:   audit.EntityConsent,
		RecordID:     record.ID.String(),
		SubjectEmail: record.SubjectEmail,
		Purpose:      record.Purpose,
		NewValues: audit.Values{
			"consent_type":   string(record.ConsentType),
			"consent_given":  record.ConsentGiven,
			"consent_method": string(record.Method),
		},
		ActorID: actor.ID,
	})
	if s.metrics != nil {
		s.metrics.IncrementRecorded(string(record.ConsentType), record.ConsentGiven)
	}
	s.logger.InfoContext(ctx, "consent recorded",
		"consent_id", record.ID.String(),
		"tenant_id", actor.TenantID.String(),
		"consent_type", string(record.ConsentType),
		"consent_given", record.ConsentGiven,
	)
	return record, nil
}

// WithdrawConsent stamps withdrawn_at once. A missing or already withdrawn
// record is NotFound.
func (s *Service) WithdrawConsent(ctx context.Context, actor id.Actor, consentID id.ConsentID, in models.WithdrawInput) (*models.Record, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	if consentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "consent id is required")
	}
	method := in.Method
	if method == "" {
		method = models.MethodForm
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "withdrawal_method is invalid")
	}

	now := requestcontext.Now(ctx)
	evidence := models.CaptureEvidence(ctx, in.ClientSignature)
	record, err := s.store.Execute(ctx, actor.TenantID, consentID,
		func(r *models.Record) error {
			if r.IsWithdrawn() {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(r *models.Record) {
			r.WithdrawnAt = &now
			r.WithdrawalMethod = method
			r.WithdrawalEvidence = &evidence
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found or already withdrawn")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to withdraw consent")
	}

	s.emitAudit(ctx, audit.Entry{
		TenantID:     actor.TenantID,
		ActionType:   audit.ActionConsent,
		EntityName:   audit.EntityConsent,
		RecordID:     record.ID.String(),
		SubjectEmail: record.SubjectEmail,
		Purpose:      record.Purpose,
		OldValues:    audit.Values{"withdrawn_at": nil},
		NewValues: audit.Values{
			"withdrawn_at":      now,
			"withdrawal_method": string(method),
		},
		ActorID: actor.ID,
	})
	if s.metrics != nil {
		s.metrics.IncrementWithdrawn(string(record.ConsentType))
	}
	s.logger.InfoContext(ctx, "consent withdrawn",
		"consent_id", record.ID.String(),
		"tenant_id", actor.TenantID.String(),
	)
	return record, nil
}

// ListConsents returns the tenant's records newest-first, optionally for one
// subject email.
func (s *Service) ListConsents(ctx context.Context, actor id.Actor, subjectEmail string) ([]*models.Record, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	records, err := s.store.ListByTenant(ctx, actor.TenantID, strings.ToLower(strings.TrimSpace(subjectEmail)))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to list consents")
	}
	return records, nil
}

// CountActive counts given, not withdrawn consents for the dashboard.
func (s *Service) CountActive(ctx context.Context, tenantID id.TenantID) (int, error) {
	count, err := s.store.CountActive(ctx, tenantID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStore, "failed to count active consents")
	}
	return count, nil
}

// emitAudit is best-effort: a failed append is logged and the mutation stands.
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
