package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"compliance/internal/consent/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

const consentColumns = `id, tenant_id, subject_id, subject_email, consent_type, purpose,
		consent_given, consent_method, consent_evidence, withdrawn_at, withdrawal_method,
		withdrawal_evidence, created_by, created_at`

// PostgresStore persists consent records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an existing transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Save(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("consent record is required")
	}
	evidence, err := json.Marshal(record.Evidence)
	if err != nil {
		return fmt.Errorf("encode consent evidence: %w", err)
	}
	query := `
		INSERT INTO consent_records (
			id, tenant_id, subject_id, subject_email, consent_type, purpose,
			consent_given, consent_method, consent_evidence, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.TenantID),
		nullableSubject(record.SubjectID),
		record.SubjectEmail,
		string(record.ConsentType),
		record.Purpose,
		record.ConsentGiven,
		string(record.Method),
		string(evidence),
		uuid.UUID(record.CreatedBy),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, consentID id.ConsentID) (*models.Record, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE id = $1 AND tenant_id = $2`
	record, err := scanConsent(s.execer().QueryRowContext(ctx, query, uuid.UUID(consentID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID, subjectEmail string) ([]*models.Record, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE tenant_id = $1`
	args := []any{uuid.UUID(tenantID)}
	if subjectEmail != "" {
		query += " AND lower(subject_email) = lower($2)"
		args = append(args, subjectEmail)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) CountActive(ctx context.Context, tenantID id.TenantID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM consent_records WHERE tenant_id = $1 AND consent_given AND withdrawn_at IS NULL`
	if err := s.execer().QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active consents: %w", err)
	}
	return count, nil
}

// Execute atomically validates and mutates a consent record under lock.
func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, consentID id.ConsentID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	if s.tx != nil {
		return s.executeWithTx(ctx, s.tx, tenantID, consentID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consent execute tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	record, err := s.executeWithTx(ctx, tx, tenantID, consentID, validate, mutate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consent execute: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) executeWithTx(ctx context.Context, tx *sql.Tx, tenantID id.TenantID, consentID id.ConsentID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	record, err := scanConsent(tx.QueryRowContext(ctx, query, uuid.UUID(consentID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent for execute: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}

	mutate(record)
	if err := updateWithdrawal(ctx, tx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// updateWithdrawal writes the only mutable columns. Capture evidence is
// never rewritten.
func updateWithdrawal(ctx context.Context, exec dbExecutor, record *models.Record) error {
	var evidence any
	if record.WithdrawalEvidence != nil {
		b, err := json.Marshal(record.WithdrawalEvidence)
		if err != nil {
			return fmt.Errorf("encode withdrawal evidence: %w", err)
		}
		evidence = string(b)
	}
	query := `
		UPDATE consent_records
		SET withdrawn_at = $2, withdrawal_method = $3, withdrawal_evidence = $4
		WHERE id = $1 AND withdrawn_at IS NULL
	`
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(record.ID),
		record.WithdrawnAt,
		nullString(string(record.WithdrawalMethod)),
		evidence,
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*models.Record, error) {
	var (
		record                     models.Record
		consentID, tenantID, actor uuid.UUID
		subjectID                  uuid.NullUUID
		consentType, method        string
		evidence, withdrawalEv     []byte
		withdrawnAt                sql.NullTime
		withdrawalMethod           sql.NullString
	)
	if err := row.Scan(&consentID, &tenantID, &subjectID, &record.SubjectEmail, &consentType, &record.Purpose,
		&record.ConsentGiven, &method, &evidence, &withdrawnAt, &withdrawalMethod,
		&withdrawalEv, &actor, &record.CreatedAt); err != nil {
		return nil, err
	}
	record.ID = id.ConsentID(consentID)
	record.TenantID = id.TenantID(tenantID)
	record.CreatedBy = id.ActorID(actor)
	record.ConsentType = models.ConsentType(consentType)
	record.Method = models.Method(method)
	if subjectID.Valid {
		sid := id.SubjectID(subjectID.UUID)
		record.SubjectID = &sid
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &record.Evidence); err != nil {
			return nil, fmt.Errorf("decode consent evidence: %w", err)
		}
	}
	if withdrawnAt.Valid {
		record.WithdrawnAt = &withdrawnAt.Time
	}
	record.WithdrawalMethod = models.Method(withdrawalMethod.String)
	if len(withdrawalEv) > 0 {
		var ev models.Evidence
		if err := json.Unmarshal(withdrawalEv, &ev); err != nil {
			return nil, fmt.Errorf("decode withdrawal evidence: %w", err)
		}
		record.WithdrawalEvidence = &ev
	}
	return &record, nil
}

func nullableSubject(subjectID *id.SubjectID) uuid.NullUUID {
	if subjectID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*subjectID), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
