package audit

import (
	"context"
	"log/slog"
	"time"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/validation"
)

// Service answers ledger queries for operators and the dashboard.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// List returns one newest-first page of the actor's tenant ledger.
func (s *Service) List(ctx context.Context, actor id.Actor, filter Filter) (*Page, error) {
	if err := actor.Authenticate(); err != nil {
		return nil, err
	}
	if filter.ActionType != "" && !filter.ActionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "action_type is invalid")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = validation.ClampPageSize(filter.Limit)

	entries, err := s.store.List(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to list audit entries")
	}
	total, err := s.store.Count(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "failed to count audit entries")
	}
	return &Page{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// CountSince counts a tenant's entries created at or after since.
func (s *Service) CountSince(ctx context.Context, tenantID id.TenantID, since time.Time) (int, error) {
	count, err := s.store.Count(ctx, tenantID, Filter{From: &since})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStore, "failed to count audit entries")
	}
	return count, nil
}
