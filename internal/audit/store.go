package audit

import (
	"context"

	id "compliance/pkg/domain"
)

// Store is the append-only persistence contract. There is deliberately no
// update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error)
	Count(ctx context.Context, tenantID id.TenantID, filter Filter) (int, error)
}
