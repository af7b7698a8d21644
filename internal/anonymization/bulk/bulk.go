// Package bulk drives the anonymization engine over every subject that has
// been inactive past the retention window. Runs are strictly sequential.
package bulk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"compliance/internal/anonymization"
	"compliance/internal/platform/tracer"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

// Inactivity rule: a record older than the grace period that has not been
// accessed for the inactivity window is due for anonymization.
const (
	gracePeriodMonths = 6
	inactivityYears   = 2
)

// Anonymizer is the single-subject engine.
type Anonymizer interface {
	Anonymize(ctx context.Context, actor id.Actor, subjectID id.SubjectID, reason string) (*anonymization.Result, error)
}

// CandidateSource lists tenant subjects matching the inactivity cutoffs.
type CandidateSource interface {
	ListCandidates(ctx context.Context, tenantID id.TenantID, createdBefore, lastAccessBefore time.Time) ([]*subject.Subject, error)
}

// Candidate is a selected subject. It carries no identifying fields.
type Candidate struct {
	SubjectID      id.SubjectID `json:"subject_id"`
	CreatedAt      time.Time    `json:"created_at"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
}

// Progress is emitted after every processed item.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Failed  int `json:"failed"`
}

// Failure records one item that could not be anonymized.
type Failure struct {
	SubjectID id.SubjectID `json:"subject_id"`
	Error     string       `json:"error"`
}

// Result summarizes a run. Current == Total unless the run was cancelled.
type Result struct {
	Total     int       `json:"total"`
	Current   int       `json:"current"`
	Failed    int       `json:"failed"`
	Cancelled bool      `json:"cancelled"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Cutoffs returns the created-before and last-access-before instants for now.
func Cutoffs(now time.Time) (createdBefore, lastAccessBefore time.Time) {
	return now.AddDate(0, -gracePeriodMonths, 0), now.AddDate(-inactivityYears, 0, 0)
}

// Qualifies reports whether s is due for inactivity anonymization at now.
func Qualifies(s *subject.Subject, now time.Time) bool {
	createdBefore, lastAccessBefore := Cutoffs(now)
	return s.Qualifies(createdBefore, lastAccessBefore)
}

type Option func(*Orchestrator)

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

type Orchestrator struct {
	engine     Anonymizer
	candidates CandidateSource
	metrics    *Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger

	mu       sync.Mutex
	active   int
	idle     chan struct{}
	draining bool
}

func NewOrchestrator(engine Anonymizer, candidates CandidateSource, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:     engine,
		candidates: candidates,
		tracer:     tracer.NewNoop(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectCandidates returns the tenant's qualifying subjects, oldest first.
// Directory rows are re-checked against Qualifies so a loose query can never
// widen the selection.
func (o *Orchestrator) SelectCandidates(ctx context.Context, actor id.Actor) ([]Candidate, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	createdBefore, lastAccessBefore := Cutoffs(now)
	subjects, err := o.candidates.ListCandidates(ctx, actor.TenantID, createdBefore, lastAccessBefore)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to list anonymization candidates")
	}
	out := make([]Candidate, 0, len(subjects))
	for _, s := range subjects {
		if s.TenantID != actor.TenantID || !Qualifies(s, now) {
			continue
		}
		out = append(out, Candidate{
			SubjectID:      s.ID,
			CreatedAt:      s.CreatedAt,
			LastAccessedAt: s.LastAccessedAt,
		})
	}
	return out, nil
}

// RunBulk anonymizes ids one after another. A failing item is counted and
// skipped. Cancellation is observed before each item; a cancelled run returns
// the partial result together with ctx.Err(). Anonymized items stay so.
func (o *Orchestrator) RunBulk(ctx context.Context, actor id.Actor, ids []id.SubjectID, reason string, progress func(Progress)) (*Result, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	if len(ids) > validation.MaxBulkCandidates {
		return nil, dErrors.New(dErrors.CodeValidation, "too many subjects in one bulk run")
	}

	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.end()

	start := time.Now()
	result := &Result{Total: len(ids)}
	ctx, span := o.tracer.Start(ctx, tracer.SpanBulkRun,
		tracer.String(tracer.AttrTenantID, actor.TenantID.String()),
		tracer.Int(tracer.AttrTotal, result.Total),
	)

	var runErr error
	for _, subjectID := range ids {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			runErr = err
			break
		}

		if _, err := o.engine.Anonymize(ctx, actor, subjectID, reason); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{SubjectID: subjectID, Error: err.Error()})
			span.AddEvent(tracer.SpanBulkItem,
				tracer.String(tracer.AttrSubjectID, subjectID.String()),
				tracer.String(tracer.AttrOutcome, anonymization.OutcomeFailed),
			)
			o.logger.WarnContext(ctx, "bulk anonymization item failed",
				"request_id", requestcontext.RequestID(ctx),
				"subject_id", subjectID.String(),
				"error", err,
			)
		}
		result.Current++
		if progress != nil {
			progress(Progress{Current: result.Current, Total: result.Total, Failed: result.Failed})
		}
	}

	elapsed := time.Since(start)
	span.SetAttributes(
		tracer.Int(tracer.AttrFailed, result.Failed),
		tracer.Bool(tracer.AttrCancelled, result.Cancelled),
		tracer.Duration(tracer.AttrElapsed, elapsed),
	)
	span.End(runErr)
	if o.metrics != nil {
		o.metrics.ObserveRun(result, elapsed.Seconds())
	}
	o.logger.InfoContext(ctx, "bulk anonymization finished",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", actor.TenantID.String(),
		"total", result.Total,
		"current", result.Current,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
	)
	return result, runErr
}

// Drain refuses new runs and blocks until the in-flight ones finish or ctx
// is done. Runs are detached from their requests, so the server calls this
// before closing the stores they write to.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	active, idle := o.active, o.idle
	o.mu.Unlock()

	if active == 0 {
		return nil
	}
	o.logger.InfoContext(ctx, "waiting for bulk anonymization runs", "active", active)
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draining {
		return dErrors.New(dErrors.CodeConflict, "server is shutting down, bulk anonymization refused")
	}
	if o.active == 0 {
		o.idle = make(chan struct{})
	}
	o.active++
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active--
	if o.active == 0 {
		close(o.idle)
	}
}
