package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"compliance/internal/requests/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

const requestColumns = `id, tenant_id, request_type, subject_email, subject_name, subject_identifier,
		request_details, verification_method, verification_status, processing_status,
		deadline_date, created_by, created_at, updated_at, completed_at`

// PostgresStore persists data subject requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO data_subject_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(req.ID),
		uuid.UUID(req.TenantID),
		string(req.Type),
		req.SubjectEmail,
		nullString(req.SubjectName),
		nullString(req.SubjectIdentifier),
		req.Details,
		req.VerificationMethod,
		string(req.VerificationStatus),
		string(req.ProcessingStatus),
		req.DeadlineDate,
		uuid.UUID(req.CreatedBy),
		req.CreatedAt,
		req.UpdatedAt,
		req.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM data_subject_requests WHERE id = $1 AND tenant_id = $2`
	req, err := scanRequest(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM data_subject_requests WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := []*models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountAll(ctx context.Context, tenantID id.TenantID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM data_subject_requests WHERE tenant_id = $1`, uuid.UUID(tenantID))
}

func (s *PostgresStore) CountPending(ctx context.Context, tenantID id.TenantID) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM data_subject_requests WHERE tenant_id = $1 AND processing_status IN ('received', 'in_progress')`,
		uuid.UUID(tenantID))
}

func (s *PostgresStore) CountOverdue(ctx context.Context, tenantID id.TenantID, now time.Time) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM data_subject_requests WHERE tenant_id = $1 AND deadline_date < $2 AND processing_status <> 'completed'`,
		uuid.UUID(tenantID), now)
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// Execute locks the row, validates, mutates and writes the status columns in
// one transaction.
func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin request execute tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + requestColumns + ` FROM data_subject_requests WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	req, err := scanRequest(tx.QueryRowContext(ctx, query, uuid.UUID(requestID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request for execute: %w", err)
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)

	update := `
		UPDATE data_subject_requests
		SET verification_status = $2, processing_status = $3, updated_at = $4, completed_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(req.ID),
		string(req.VerificationStatus),
		string(req.ProcessingStatus),
		req.UpdatedAt,
		req.CompletedAt,
	); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit request execute: %w", err)
	}
	return req, nil
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.Request, error) {
	var (
		req                      models.Request
		requestID, tenant, actor uuid.UUID
		reqType, verif, proc     string
		name, identifier         sql.NullString
		completedAt              sql.NullTime
	)
	if err := row.Scan(&requestID, &tenant, &reqType, &req.SubjectEmail, &name, &identifier,
		&req.Details, &req.VerificationMethod, &verif, &proc,
		&req.DeadlineDate, &actor, &req.CreatedAt, &req.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	req.ID = id.RequestID(requestID)
	req.TenantID = id.TenantID(tenant)
	req.CreatedBy = id.ActorID(actor)
	req.Type = models.RequestType(reqType)
	req.VerificationStatus = models.VerificationStatus(verif)
	req.ProcessingStatus = models.ProcessingStatus(proc)
	req.SubjectName = name.String
	req.SubjectIdentifier = identifier.String
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	return &req, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
