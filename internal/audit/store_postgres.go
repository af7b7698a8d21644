package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	id "compliance/pkg/domain"
)

// PostgresStore persists audit entries in PostgreSQL. The table carries a
// trigger that rejects UPDATE and DELETE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	oldValues, err := encodeValues(entry.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := encodeValues(entry.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	query := `
		INSERT INTO audit_entries (
			id, tenant_id, action_type, entity_name, record_id, subject_email,
			purpose, old_values, new_values, actor_id, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.TenantID),
		string(entry.ActionType),
		entry.EntityName,
		nullString(entry.RecordID),
		nullString(entry.SubjectEmail),
		nullString(entry.Purpose),
		oldValues,
		newValues,
		uuid.UUID(entry.ActorID),
		entry.RequestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error) {
	where, args := whereClause(tenantID, filter)
	query := `
		SELECT id, tenant_id, action_type, entity_name, record_id, subject_email,
			purpose, old_values, new_values, actor_id, request_id, created_at
		FROM audit_entries
	` + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Count(ctx context.Context, tenantID id.TenantID, filter Filter) (int, error) {
	where, args := whereClause(tenantID, filter)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func whereClause(tenantID id.TenantID, filter Filter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.EntityName != "" {
		add("entity_name = $%d", filter.EntityName)
	}
	if filter.SubjectEmail != "" {
		add("lower(subject_email) = lower($%d)", filter.SubjectEmail)
	}
	if filter.ActionType != "" {
		add("action_type = $%d", string(filter.ActionType))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

type entryRow interface {
	Scan(dest ...any) error
}

func scanEntry(row entryRow) (*Entry, error) {
	var (
		entry                           Entry
		entryID, tenantID, actorID      uuid.UUID
		action                          string
		recordID, subjectEmail, purpose sql.NullString
		oldValues, newValues            []byte
	)
	if err := row.Scan(&entryID, &tenantID, &action, &entry.EntityName, &recordID, &subjectEmail,
		&purpose, &oldValues, &newValues, &actorID, &entry.RequestID, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.ID = id.AuditEntryID(entryID)
	entry.TenantID = id.TenantID(tenantID)
	entry.ActorID = id.ActorID(actorID)
	entry.ActionType = ActionType(action)
	entry.RecordID = recordID.String
	entry.SubjectEmail = subjectEmail.String
	entry.Purpose = purpose.String
	var err error
	if entry.OldValues, err = decodeValues(oldValues); err != nil {
		return nil, err
	}
	if entry.NewValues, err = decodeValues(newValues); err != nil {
		return nil, err
	}
	return &entry, nil
}

func encodeValues(v Values) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeValues(b []byte) (Values, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v Values
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
