package subject

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

const subjectColumns = `id, tenant_id, name, surname_or_business_name, email, phone, tax_id,
		address, created_at, last_accessed_at, anonymized_at`

// PostgresDirectory reads and writes the CRM subjects table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Create(ctx context.Context, s *Subject) error {
	query := `
		INSERT INTO subjects (` + subjectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := d.db.ExecContext(ctx, query,
		uuid.UUID(s.ID),
		uuid.UUID(s.TenantID),
		s.Name,
		s.SurnameOrBusinessName,
		s.Email,
		nullString(s.Phone),
		nullString(s.TaxID),
		s.Address,
		s.CreatedAt,
		s.LastAccessedAt,
		s.AnonymizedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (d *PostgresDirectory) GetByID(ctx context.Context, subjectID id.SubjectID) (*Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	s, err := scanSubject(d.db.QueryRowContext(ctx, query, uuid.UUID(subjectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject: %w", err)
	}
	return s, nil
}

func (d *PostgresDirectory) GetByEmail(ctx context.Context, tenantID id.TenantID, email string) (*Subject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM subjects
		WHERE tenant_id = $1 AND lower(email) = $2
		ORDER BY created_at
		LIMIT 1
	`
	s, err := scanSubject(d.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject by email: %w", err)
	}
	return s, nil
}

// UpdateFields runs the partial update in its own transaction. When the update
// stamps anonymized_at the statement only matches rows where it is still
// NULL, so of two concurrent anonymizations exactly one wins and the other
// gets ErrAlreadyAnonymized.
func (d *PostgresDirectory) UpdateFields(ctx context.Context, subjectID id.SubjectID, fields Fields) (*Subject, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin subject update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	keys := make([]string, 0, len(fields))
	for f := range fields {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, fields[Field(k)])
		sets = append(sets, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	args = append(args, uuid.UUID(subjectID))
	query := fmt.Sprintf("UPDATE subjects SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	_, stamping := fields[FieldAnonymizedAt]
	if stamping {
		query += " AND anonymized_at IS NULL"
	}
	query += " RETURNING " + subjectColumns

	updated, err := scanSubject(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, d.missReason(ctx, tx, subjectID, stamping)
	}
	if err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subject update: %w", err)
	}
	return updated, nil
}

// missReason tells a missing row apart from one the anonymization guard skipped.
func (d *PostgresDirectory) missReason(ctx context.Context, tx *sql.Tx, subjectID id.SubjectID, stamping bool) error {
	var anonymizedAt sql.NullTime
	err := tx.QueryRowContext(ctx, `SELECT anonymized_at FROM subjects WHERE id = $1`, uuid.UUID(subjectID)).Scan(&anonymizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("recheck subject: %w", err)
	}
	if stamping && anonymizedAt.Valid {
		return sentinel.ErrAlreadyAnonymized
	}
	return sentinel.ErrNotFound
}

func (d *PostgresDirectory) ListCandidates(ctx context.Context, tenantID id.TenantID, createdBefore, lastAccessBefore time.Time) ([]*Subject, error) {
	query := `
		SELECT ` + subjectColumns + `
		FROM subjects
		WHERE tenant_id = $1
			AND anonymized_at IS NULL
			AND created_at < $2
			AND (last_accessed_at IS NULL OR last_accessed_at < $3)
		ORDER BY created_at
	`
	rows, err := d.db.QueryContext(ctx, query, uuid.UUID(tenantID), createdBefore, lastAccessBefore)
	if err != nil {
		return nil, fmt.Errorf("list anonymization candidates: %w", err)
	}
	defer rows.Close()

	var out []*Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

type subjectRow interface {
	Scan(dest ...any) error
}

func scanSubject(row subjectRow) (*Subject, error) {
	var (
		s                          Subject
		subjectID, tenantID        uuid.UUID
		phone, taxID               sql.NullString
		lastAccessed, anonymizedAt sql.NullTime
	)
	if err := row.Scan(&subjectID, &tenantID, &s.Name, &s.SurnameOrBusinessName, &s.Email,
		&phone, &taxID, &s.Address, &s.CreatedAt, &lastAccessed, &anonymizedAt); err != nil {
		return nil, err
	}
	s.ID = id.SubjectID(subjectID)
	s.TenantID = id.TenantID(tenantID)
	s.Phone = phone.String
	s.TaxID = taxID.String
	if lastAccessed.Valid {
		s.LastAccessedAt = &lastAccessed.Time
	}
	if anonymizedAt.Valid {
		s.AnonymizedAt = &anonymizedAt.Time
	}
	return &s, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
