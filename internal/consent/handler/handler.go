package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compliance/internal/consent/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the consent operations exposed over HTTP.
type Service interface {
	RecordConsent(ctx context.Context, actor id.Actor, in models.RecordInput) (*models.Record, error)
	WithdrawConsent(ctx context.Context, actor id.Actor, consentID id.ConsentID, in models.WithdrawInput) (*models.Record, error)
	ListConsents(ctx context.Context, actor id.Actor, subjectEmail string) ([]*models.Record, error)
}

// Handler handles consent ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents", h.handleRecord)
	r.Get("/consents", h.handleList)
	r.Post("/consents/{id}/withdraw", h.handleWithdraw)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.RecordConsentRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.Input()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.RecordConsent(ctx, actor, in)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record consent",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	consentID, err := id.ParseConsentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.WithdrawConsentRequest](w, r, h.logger)
	if !ok {
		return
	}

	record, err := h.consent.WithdrawConsent(ctx, actor, consentID, models.WithdrawInput{
		Method:          models.Method(req.WithdrawalMethod),
		ClientSignature: req.ClientSignature,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to withdraw consent",
			"request_id", requestcontext.RequestID(ctx),
			"consent_id", consentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.consent.ListConsents(ctx, actor, r.URL.Query().Get("subject_email"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list consents",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Consents: records})
}
