package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "compliance/pkg/domain"
)

func TestInMemoryStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenant := id.TenantID(uuid.New())
	other := id.TenantID(uuid.New())
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, Entry{TenantID: tenant, ActionType: ActionConsent, EntityName: EntityConsent, SubjectEmail: "jane@acme.com", CreatedAt: base}))
	require.NoError(t, store.Append(ctx, Entry{TenantID: tenant, ActionType: ActionAccessRequest, EntityName: EntityRequest, SubjectEmail: "jane@acme.com", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.Append(ctx, Entry{TenantID: tenant, ActionType: ActionAnonymization, EntityName: EntitySubject, CreatedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, store.Append(ctx, Entry{TenantID: other, ActionType: ActionConsent, EntityName: EntityConsent, CreatedAt: base}))

	t.Run("newest first within tenant", func(t *testing.T) {
		got, err := store.List(ctx, tenant, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, ActionAnonymization, got[0].ActionType)
		assert.Equal(t, ActionConsent, got[2].ActionType)
	})

	t.Run("subject email matches case-insensitively", func(t *testing.T) {
		got, err := store.List(ctx, tenant, Filter{SubjectEmail: "JANE@acme.com"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("date range and entity", func(t *testing.T) {
		from := base.Add(30 * time.Minute)
		got, err := store.List(ctx, tenant, Filter{From: &from, EntityName: EntityRequest})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ActionAccessRequest, got[0].ActionType)
	})

	t.Run("pagination and count", func(t *testing.T) {
		got, err := store.List(ctx, tenant, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ActionAccessRequest, got[0].ActionType)

		count, err := store.Count(ctx, tenant, Filter{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		empty, err := store.List(ctx, tenant, Filter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
