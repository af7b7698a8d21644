package anonymization

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

// Anonymizer is the operation the handler exposes.
type Anonymizer interface {
	Anonymize(ctx context.Context, actor id.Actor, subjectID id.SubjectID, reason string) (*Result, error)
}

// AnonymizeBody is the POST /subjects/{id}/anonymize body.
type AnonymizeBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (b *AnonymizeBody) Normalize() {
	b.Reason = strings.TrimSpace(b.Reason)
}

func (b *AnonymizeBody) Validate() error {
	return validation.Validate(b)
}

type Handler struct {
	service Anonymizer
	logger  *slog.Logger
}

func NewHandler(service Anonymizer, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/subjects/{id}/anonymize", h.handleAnonymize)
}

func (h *Handler) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[AnonymizeBody](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.Anonymize(ctx, actor, subjectID, body.Reason)
	if err != nil {
		level := slog.LevelError
		if dErrors.HasCode(err, dErrors.CodeAlreadyAnonymized) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "anonymization failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subjectID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
