package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"compliance/internal/audit"
	"compliance/internal/notification"
	"compliance/internal/platform/tracer"
	"compliance/internal/rectification"
	"compliance/internal/requests/metrics"
	"compliance/internal/requests/models"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Directory

// Store defines the persistence interface for data subject requests.
// Error Contract:
// - FindByID and Execute return sentinel.ErrNotFound when no request exists in the tenant
// - Execute returns the validate error unchanged
type Store interface {
	Save(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, tenantID id.TenantID, requestID id.RequestID) (*models.Request, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Request, error)
	CountAll(ctx context.Context, tenantID id.TenantID) (int, error)
	CountPending(ctx context.Context, tenantID id.TenantID) (int, error)
	CountOverdue(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error)
	Execute(ctx context.Context, tenantID id.TenantID, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error)
}

// Directory is the subject directory surface rectification needs.
// GetByEmail returns sentinel.ErrNotFound when the tenant has no such subject.
type Directory interface {
	GetByEmail(ctx context.Context, tenantID id.TenantID, email string) (*subject.Subject, error)
	UpdateFields(ctx context.Context, subjectID id.SubjectID, fields subject.Fields) (*subject.Subject, error)
}

type Option func(*Service)

// Service runs the data subject request lifecycle.
type Service struct {
	store     Store
	directory Directory
	auditor   *audit.Publisher
	notifier  notification.Sender
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
}

func NewService(store Store, directory Directory, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		directory: directory,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier sets the sender used after a request completes.
func WithNotifier(n notification.Sender) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func (s *Service) CreateRequest(ctx context.Context, actor id.Actor, in models.CreateInput) (*models.Request, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	req, err := models.NewRequest(actor.TenantID, actor.ID, in, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to save request")
	}

	s.emitAudit(ctx, audit.Entry{
		TenantID:     actor.TenantID,
		ActionType:   audit.ActionAccessRequest,
		EntityName:   audit.EntityRequest,
		RecordID:     req.ID.String(),
		SubjectEmail: req.SubjectEmail,
		Purpose:      string(req.Type),
		NewValues: audit.Values{
			"request_type":        string(req.Type),
			"verification_status": string(req.VerificationStatus),
			"processing_status":   string(req.ProcessingStatus),
			"deadline_date":       req.DeadlineDate,
		},
		ActorID: actor.ID,
	})
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(req.Type))
	}
	s.logger.InfoContext(ctx, "data subject request created",
		"request_id", requestcontext.RequestID(ctx),
		"dsr_id", req.ID.String(),
		"tenant_id", actor.TenantID.String(),
		"request_type", string(req.Type),
	)
	return req, nil
}

func (s *Service) ListRequests(ctx context.Context, actor id.Actor) ([]*models.Request, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	reqs, err := s.store.ListByTenant(ctx, actor.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to list requests")
	}
	return reqs, nil
}

func (s *Service) GetRequest(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	req, err := s.store.FindByID(ctx, actor.TenantID, requestID)
	if err != nil {
		return nil, translateStoreErr(err, "request", "failed to load request")
	}
	return req, nil
}

// UpdateStatus moves the request through its state machine. Completion
// notifies the creator after the change is committed; a failed send is only
// logged.
func (s *Service) UpdateStatus(ctx context.Context, actor id.Actor, requestID id.RequestID, target models.Target) (*models.Request, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status is invalid")
	}

	now := requestcontext.Now(ctx)
	var before map[string]any
	req, err := s.store.Execute(ctx, actor.TenantID, requestID,
		func(r *models.Request) error {
			before = r.StatusSnapshot()
			return r.CanTransition(target)
		},
		func(r *models.Request) {
			r.Transition(target, now)
		},
	)
	if err != nil {
		return nil, translateStoreErr(err, "request", "failed to update request status")
	}

	s.emitAudit(ctx, audit.Entry{
		TenantID:     actor.TenantID,
		ActionType:   audit.ActionAccessRequest,
		EntityName:   audit.EntityRequest,
		RecordID:     req.ID.String(),
		SubjectEmail: req.SubjectEmail,
		Purpose:      string(req.Type),
		OldValues:    before,
		NewValues:    req.StatusSnapshot(),
		ActorID:      actor.ID,
	})
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(target))
	}
	s.logger.InfoContext(ctx, "data subject request status updated",
		"request_id", requestcontext.RequestID(ctx),
		"dsr_id", req.ID.String(),
		"tenant_id", actor.TenantID.String(),
		"target", string(target),
	)

	if target == models.TargetCompleted {
		s.notifyCompleted(ctx, req)
	}
	return req, nil
}

func (s *Service) notifyCompleted(ctx context.Context, req *models.Request) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Send(ctx, notification.Notification{
		RecipientID: req.CreatedBy.String(),
		Title:       "Data subject request completed",
		Body:        fmt.Sprintf("The %s request %s has been completed.", req.Type, req.ID),
		Kind:        notification.KindRequestCompleted,
		ReferenceID: req.ID.String(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementNotificationFailure()
		}
		s.logger.WarnContext(ctx, "failed to send completion notification",
			"request_id", requestcontext.RequestID(ctx),
			"dsr_id", req.ID.String(),
			"error", err,
		)
	}
}

// ApplyRectification writes the values proposed in a rectification request to
// the subject record. A description with nothing recognisable leaves the
// directory untouched and returns an empty result.
func (s *Service) ApplyRectification(ctx context.Context, actor id.Actor, requestID id.RequestID) (result *models.RectificationResult, err error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanRectifyApply,
		tracer.String(tracer.AttrTenantID, actor.TenantID.String()))
	defer func() { span.End(err) }()

	req, err := s.store.FindByID(ctx, actor.TenantID, requestID)
	if err != nil {
		return nil, translateStoreErr(err, "request", "failed to load request")
	}
	span.SetAttributes(tracer.String(tracer.AttrSubjectEmail, tracer.HashEmail(req.SubjectEmail)))
	if !req.IsRectification() {
		return nil, dErrors.New(dErrors.CodeValidation, "request is not a rectification")
	}
	if req.ProcessingStatus.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "request is already "+string(req.ProcessingStatus))
	}

	result = &models.RectificationResult{RequestID: req.ID.String(), Changed: map[string]string{}}
	changes, ok := rectification.ParseChanges(req.Details).(rectification.Changes)
	if !ok {
		span.SetAttributes(tracer.Int(tracer.AttrFieldCount, 0))
		return result, nil
	}
	span.SetAttributes(tracer.Int(tracer.AttrFieldCount, len(changes)))

	subj, err := s.directory.GetByEmail(ctx, actor.TenantID, req.SubjectEmail)
	if err != nil {
		return nil, translateStoreErr(err, "subject", "failed to load subject")
	}
	if subj.IsAnonymized() {
		return nil, dErrors.New(dErrors.CodeAlreadyAnonymized, "subject is anonymized")
	}
	span.SetAttributes(tracer.String(tracer.AttrSubjectID, subj.ID.String()))

	fields := changes.SortedFields()
	previous := subj.Snapshot(fields...)
	updated, err := s.directory.UpdateFields(ctx, subj.ID, changes.Fields())
	if err != nil {
		return nil, translateStoreErr(err, "subject", "failed to update subject")
	}

	result.SubjectID = updated.ID.String()
	result.Previous = make(map[string]string, len(fields))
	for _, f := range fields {
		result.Changed[string(f)] = updated.Value(f)
		result.Previous[string(f)], _ = previous[string(f)].(string)
	}

	s.emitAudit(ctx, audit.Entry{
		TenantID:     actor.TenantID,
		ActionType:   audit.ActionRectification,
		EntityName:   audit.EntitySubject,
		RecordID:     updated.ID.String(),
		SubjectEmail: req.SubjectEmail,
		Purpose:      "rectification request " + req.ID.String(),
		OldValues:    previous,
		NewValues:    updated.Snapshot(fields...),
		ActorID:      actor.ID,
	})
	if s.metrics != nil {
		s.metrics.IncrementRectification()
	}
	s.logger.InfoContext(ctx, "rectification applied",
		"request_id", requestcontext.RequestID(ctx),
		"dsr_id", req.ID.String(),
		"subject_id", updated.ID.String(),
		"field_count", len(fields),
	)
	return result, nil
}

// RectificationSatisfied reports whether the subject already carries every
// value the request proposes.
func (s *Service) RectificationSatisfied(ctx context.Context, actor id.Actor, requestID id.RequestID) (bool, error) {
	if err := actor.Authenticate(); err != nil {
		return false, err
	}
	req, err := s.store.FindByID(ctx, actor.TenantID, requestID)
	if err != nil {
		return false, translateStoreErr(err, "request", "failed to load request")
	}
	if !req.IsRectification() || req.IsCompleted() {
		return true, nil
	}
	subj, err := s.directory.GetByEmail(ctx, actor.TenantID, req.SubjectEmail)
	if errors.Is(err, sentinel.ErrNotFound) {
		// An applied email change moves the subject to the proposed address.
		if changes, ok := rectification.ParseChanges(req.Details).(rectification.Changes); ok {
			if proposed, ok := changes[subject.FieldEmail]; ok {
				subj, err = s.directory.GetByEmail(ctx, actor.TenantID, proposed)
			}
		}
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.Wrap(err, dErrors.CodeStore, "failed to load subject")
	}
	return rectification.IsSatisfied(req, subj), nil
}

// CountAll, CountPending and CountOverdue back the dashboard.

func (s *Service) CountAll(ctx context.Context, tenantID id.TenantID) (int, error) {
	n, err := s.store.CountAll(ctx, tenantID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStore, "failed to count requests")
	}
	return n, nil
}

func (s *Service) CountPending(ctx context.Context, tenantID id.TenantID) (int, error) {
	n, err := s.store.CountPending(ctx, tenantID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStore, "failed to count pending requests")
	}
	return n, nil
}

func (s *Service) CountOverdue(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error) {
	n, err := s.store.CountOverdue(ctx, tenantID, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStore, "failed to count overdue requests")
	}
	return n, nil
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

// translateStoreErr maps sentinel and domain errors once; anything else is a
// store failure.
func translateStoreErr(err error, entity, msg string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrAlreadyAnonymized):
		return dErrors.New(dErrors.CodeAlreadyAnonymized, "subject is anonymized")
	default:
		return dErrors.Wrap(err, dErrors.CodeStore, msg)
	}
}
