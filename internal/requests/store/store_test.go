package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/requests/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

var (
	tenantA = id.TenantID(uuid.New())
	tenantB = id.TenantID(uuid.New())
	base    = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
)

func mustRequest(t *testing.T, tenant id.TenantID, typ models.RequestType, at time.Time) *models.Request {
	t.Helper()
	r, err := models.NewRequest(tenant, id.ActorID(uuid.New()), models.CreateInput{Type: typ, SubjectEmail: "jane@acme.com"}, at)
	require.NoError(t, err)
	return r
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	older := mustRequest(t, tenantA, models.TypeAccess, base)
	newer := mustRequest(t, tenantA, models.TypePortability, base.Add(time.Hour))
	foreign := mustRequest(t, tenantB, models.TypeErasure, base)
	for _, r := range []*models.Request{older, newer, foreign} {
		require.NoError(t, s.Save(ctx, r))
	}
	assert.ErrorIs(t, s.Save(ctx, older), sentinel.ErrConflict)

	t.Run("list is tenant scoped and newest first", func(t *testing.T) {
		list, err := s.ListByTenant(ctx, tenantA)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
	})

	t.Run("foreign tenant lookups miss", func(t *testing.T) {
		_, err := s.FindByID(ctx, tenantB, older.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.Execute(ctx, tenantB, older.ID, func(*models.Request) error { return nil }, func(*models.Request) {})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("failed validation leaves the row untouched", func(t *testing.T) {
		_, err := s.Execute(ctx, tenantA, older.ID,
			func(*models.Request) error { return assert.AnError },
			func(r *models.Request) { r.ProcessingStatus = models.ProcessingRejected })
		assert.ErrorIs(t, err, assert.AnError)
		got, err := s.FindByID(ctx, tenantA, older.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessingReceived, got.ProcessingStatus)
	})

	t.Run("counts", func(t *testing.T) {
		_, err := s.Execute(ctx, tenantA, newer.ID, func(*models.Request) error { return nil },
			func(r *models.Request) { r.Transition(models.TargetRejected, base.Add(2*time.Hour)) })
		require.NoError(t, err)

		all, _ := s.CountAll(ctx, tenantA)
		pending, _ := s.CountPending(ctx, tenantA)
		overdue, _ := s.CountOverdue(ctx, tenantA, base.Add(45*24*time.Hour))
		assert.Equal(t, 2, all)
		assert.Equal(t, 1, pending)
		assert.Equal(t, 1, overdue, "access is 15 days late; rejected portability is still inside 90 days")
	})
}

func TestInMemoryStore_ListBreaksTiesOnID(t *testing.T) {
	ctx := context.Background()
	s := New()

	var saved []*models.Request
	for range 6 {
		r := mustRequest(t, tenantA, models.TypeAccess, base)
		require.NoError(t, s.Save(ctx, r))
		saved = append(saved, r)
	}

	first, err := s.ListByTenant(ctx, tenantA)
	require.NoError(t, err)
	require.Len(t, first, len(saved))
	for i := 1; i < len(first); i++ {
		assert.Greater(t, first[i-1].ID.String(), first[i].ID.String())
	}

	for range 5 {
		again, err := s.ListByTenant(ctx, tenantA)
		require.NoError(t, err)
		for i := range again {
			assert.Equal(t, first[i].ID, again[i].ID)
		}
	}
}

var requestCols = []string{
	"id", "tenant_id", "request_type", "subject_email", "subject_name", "subject_identifier",
	"request_details", "verification_method", "verification_status", "processing_status",
	"deadline_date", "created_by", "created_at", "updated_at", "completed_at",
}

func newRequestMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func requestRowFor(r *models.Request) *sqlmock.Rows {
	return sqlmock.NewRows(requestCols).AddRow(
		r.ID.String(), r.TenantID.String(), string(r.Type), r.SubjectEmail, nil, nil,
		r.Details, r.VerificationMethod, string(r.VerificationStatus), string(r.ProcessingStatus),
		r.DeadlineDate, r.CreatedBy.String(), r.CreatedAt, r.UpdatedAt, nil,
	)
}

func TestPostgresStore_Execute(t *testing.T) {
	req := mustRequest(t, tenantA, models.TypeAccess, base)
	req.ProcessingStatus = models.ProcessingInProgress
	done := base.Add(72 * time.Hour)

	complete := func(r *models.Request) { r.Transition(models.TargetCompleted, done) }
	check := func(r *models.Request) error { return r.CanTransition(models.TargetCompleted) }

	t.Run("commit writes status columns", func(t *testing.T) {
		s, mock := newRequestMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM data_subject_requests WHERE id = \$1 AND tenant_id = \$2 FOR UPDATE`).
			WithArgs(req.ID.String(), tenantA.String()).
			WillReturnRows(requestRowFor(req))
		mock.ExpectExec(`UPDATE data_subject_requests\s+SET verification_status = \$2, processing_status = \$3, updated_at = \$4, completed_at = \$5`).
			WithArgs(req.ID.String(), "pending", "completed", done, done).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := s.Execute(context.Background(), tenantA, req.ID, check, complete)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessingCompleted, got.ProcessingStatus)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal row rolls back", func(t *testing.T) {
		terminal := *req
		terminal.ProcessingStatus = models.ProcessingCompleted
		s, mock := newRequestMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(requestRowFor(&terminal))
		mock.ExpectRollback()

		_, err := s.Execute(context.Background(), tenantA, req.ID, check, complete)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		s, mock := newRequestMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(requestCols))
		mock.ExpectRollback()

		_, err := s.Execute(context.Background(), tenantA, req.ID, check, complete)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure surfaces", func(t *testing.T) {
		s, mock := newRequestMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(requestRowFor(req))
		mock.ExpectExec(`UPDATE data_subject_requests`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		_, err := s.Execute(context.Background(), tenantA, req.ID, check, complete)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit request execute")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Counts(t *testing.T) {
	s, mock := newRequestMock(t)
	now := base.Add(40 * 24 * time.Hour)

	mock.ExpectQuery(`processing_status IN \('received', 'in_progress'\)`).
		WithArgs(tenantA.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`deadline_date < \$2 AND processing_status <> 'completed'`).
		WithArgs(tenantA.String(), now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	pending, err := s.CountPending(context.Background(), tenantA)
	require.NoError(t, err)
	overdue, err := s.CountOverdue(context.Background(), tenantA, now)
	require.NoError(t, err)
	assert.Equal(t, 4, pending)
	assert.Equal(t, 2, overdue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByTenant(t *testing.T) {
	s, mock := newRequestMock(t)
	req := mustRequest(t, tenantA, models.TypeRectification, base)

	mock.ExpectQuery(`WHERE tenant_id = \$1 ORDER BY created_at DESC, id DESC`).
		WithArgs(tenantA.String()).
		WillReturnRows(requestRowFor(req))

	list, err := s.ListByTenant(context.Background(), tenantA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
	assert.Equal(t, models.TypeRectification, list[0].Type)
	assert.Nil(t, list[0].CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
