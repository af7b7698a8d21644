package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

type Aggregator interface {
	GetDashboard(ctx context.Context, actor id.Actor) (*Stats, error)
}

type Handler struct {
	service Aggregator
	logger  *slog.Logger
}

func NewHandler(service Aggregator, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/dashboard", h.handleGet)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	stats, err := h.service.GetDashboard(ctx, actor)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build dashboard",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
