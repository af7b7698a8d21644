package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

// Querier is the read surface the handler depends on.
type Querier interface {
	List(ctx context.Context, actor id.Actor, filter Filter) (*Page, error)
}

// Handler serves the audit log query endpoint.
type Handler struct {
	service Querier
	logger  *slog.Logger
}

func NewHandler(service Querier, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.List(ctx, actor, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		EntityName:   q.Get("entity_name"),
		SubjectEmail: q.Get("subject_email"),
		ActionType:   ActionType(q.Get("action_type")),
	}
	var err error
	if filter.From, err = parseTime(q.Get("from"), false); err != nil {
		return Filter{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC3339 or YYYY-MM-DD")
	}
	if filter.To, err = parseTime(q.Get("to"), true); err != nil {
		return Filter{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC3339 or YYYY-MM-DD")
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		return Filter{}, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
	}
	if filter.Offset, err = parseInt(q.Get("offset")); err != nil {
		return Filter{}, dErrors.New(dErrors.CodeBadRequest, "offset must be an integer")
	}
	return filter, nil
}

// parseTime accepts RFC3339 or a bare date. A bare "to" date covers the whole day.
func parseTime(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
