package bulk

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

// RunPath is the bulk run route. Its body cap is validation.MaxBulkBodySize.
const RunPath = "/anonymization/bulk"

// Service is the orchestrator surface the handler exposes.
type Service interface {
	SelectCandidates(ctx context.Context, actor id.Actor) ([]Candidate, error)
	RunBulk(ctx context.Context, actor id.Actor, ids []id.SubjectID, reason string, progress func(Progress)) (*Result, error)
}

// RunBody starts a run. Without subject_ids the current candidates are used.
type RunBody struct {
	Reason     string   `json:"reason" validate:"required,max=500"`
	SubjectIDs []string `json:"subject_ids" validate:"max=10000,dive,uuid"`
}

func (b *RunBody) Normalize() {
	b.Reason = strings.TrimSpace(b.Reason)
}

func (b *RunBody) Validate() error {
	return validation.Validate(b)
}

// CandidatesResponse lists the subjects a run would process.
type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
	Total      int         `json:"total"`
}

// StreamEvent is one NDJSON line of a run: progress lines, then one result.
type StreamEvent struct {
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/anonymization/candidates", h.handleCandidates)
	r.Post(RunPath, h.handleRun)
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	candidates, err := h.service.SelectCandidates(ctx, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to select anonymization candidates",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &CandidatesResponse{Candidates: candidates, Total: len(candidates)})
}

// handleRun streams progress as NDJSON. The run is detached from the request
// context: a client disconnect does not stop it halfway.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[RunBody](w, r, h.logger)
	if !ok {
		return
	}

	ids, err := h.resolveSubjects(ctx, actor, body.SubjectIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	emit := func(ev StreamEvent) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, err := h.service.RunBulk(context.WithoutCancel(ctx), actor, ids, body.Reason, func(p Progress) {
		emit(StreamEvent{Progress: &p})
	})
	final := StreamEvent{Result: result}
	if err != nil {
		h.logger.ErrorContext(ctx, "bulk anonymization aborted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		final.Error = err.Error()
	}
	emit(final)
}

func (h *Handler) resolveSubjects(ctx context.Context, actor id.Actor, raw []string) ([]id.SubjectID, error) {
	if len(raw) > 0 {
		ids := make([]id.SubjectID, 0, len(raw))
		for _, s := range raw {
			subjectID, err := id.ParseSubjectID(s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, subjectID)
		}
		return ids, nil
	}
	candidates, err := h.service.SelectCandidates(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]id.SubjectID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SubjectID
	}
	return ids, nil
}
