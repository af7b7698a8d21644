package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compliance/internal/rectification"
	"compliance/internal/requests/models"
	"compliance/internal/subject"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the request registry operations exposed over HTTP.
type Service interface {
	CreateRequest(ctx context.Context, actor id.Actor, in models.CreateInput) (*models.Request, error)
	ListRequests(ctx context.Context, actor id.Actor) ([]*models.Request, error)
	GetRequest(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.Request, error)
	UpdateStatus(ctx context.Context, actor id.Actor, requestID id.RequestID, target models.Target) (*models.Request, error)
	ApplyRectification(ctx context.Context, actor id.Actor, requestID id.RequestID) (*models.RectificationResult, error)
	RectificationSatisfied(ctx context.Context, actor id.Actor, requestID id.RequestID) (bool, error)
}

// Handler handles data subject request endpoints.
type Handler struct {
	logger   *slog.Logger
	requests Service
}

func New(requests Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, requests: requests}
}

// Register registers the request routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests", h.handleCreate)
	r.Get("/requests", h.handleList)
	r.Get("/requests/{id}", h.handleGet)
	r.Patch("/requests/{id}/status", h.handleUpdateStatus)
	r.Post("/requests/{id}/rectification/apply", h.handleApplyRectification)
	r.Get("/requests/{id}/rectification", h.handleRectificationStatus)
	r.Post("/rectification/parse", h.handleParse)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[models.CreateRequestBody](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.requests.CreateRequest(ctx, actor, body.Input())
	if err != nil {
		h.logError(ctx, "failed to create request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.requests.ListRequests(ctx, actor)
	if err != nil {
		h.logError(ctx, "failed to list requests", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Requests: reqs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, requestID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	req, err := h.requests.GetRequest(ctx, actor, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, requestID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[models.UpdateStatusBody](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.requests.UpdateStatus(ctx, actor, requestID, models.Target(body.Status))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update request status",
			"request_id", requestcontext.RequestID(ctx),
			"dsr_id", requestID.String(),
			"target", body.Status,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleApplyRectification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, requestID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	result, err := h.requests.ApplyRectification(ctx, actor, requestID)
	if err != nil {
		h.logError(ctx, "failed to apply rectification", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRectificationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, requestID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	satisfied, err := h.requests.RectificationSatisfied(ctx, actor, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SatisfiedResponse{
		RequestID: requestID.String(),
		Satisfied: satisfied,
	})
}

// handleParse previews a description without touching any record.
func (h *Handler) handleParse(w http.ResponseWriter, r *http.Request) {
	if _, err := httputil.RequireActor(r.Context(), h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[models.ParseBody](w, r, h.logger)
	if !ok {
		return
	}

	resp := models.ParseResponse{NoChanges: true, Changes: map[subject.Field]string{}}
	if changes, ok := rectification.ParseChanges(body.Description).(rectification.Changes); ok {
		resp.NoChanges = false
		resp.Changes = changes
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (id.Actor, id.RequestID, bool) {
	actor, err := httputil.RequireActor(r.Context(), h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return id.Actor{}, id.RequestID{}, false
	}
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.Actor{}, id.RequestID{}, false
	}
	return actor, requestID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
