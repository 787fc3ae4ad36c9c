package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditLog is the supplemented-feature repository grounded on
// original_source's storage/repositories/agent_execution_log.rs: every
// tool execution and permission decision, independent of the tool_calls
// row (which records the result; this records the decision trail).
type AuditLog struct {
	ID          string
	ExecutionID string // empty if not tied to an execution
	Kind        string // e.g. "tool_call", "permission_grant", "permission_deny"
	Subject     string // tool name, file path, etc.
	Decision    string
	Detail      string
	CreatedAt   time.Time
}

func (AuditLog) TableName() string { return "audit_logs" }

var auditLogColumns = []string{"id", "execution_id", "kind", "subject", "decision", "detail", "created_at"}

func scanAuditLog(row Scanner_Row) (AuditLog, error) {
	var a AuditLog
	var executionID, decision, detail sql.NullString
	var createdAt string
	if err := row.Scan(&a.ID, &executionID, &a.Kind, &a.Subject, &decision, &detail, &createdAt); err != nil {
		return a, err
	}
	a.ExecutionID = executionID.String
	a.Decision = decision.String
	a.Detail = detail.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func bindAuditLog(a AuditLog) []any {
	var executionID any
	if a.ExecutionID != "" {
		executionID = a.ExecutionID
	}
	return []any{a.ID, executionID, a.Kind, a.Subject, a.Decision, a.Detail, a.CreatedAt.UTC().Format(timeFmt)}
}

// AuditLogRepository is the AuditLogs specialization.
type AuditLogRepository struct {
	*Repository[AuditLog]
	db *sql.DB
}

func (s *Store) AuditLogs() *AuditLogRepository {
	return &AuditLogRepository{
		Repository: NewRepository(s.db, "audit_logs", "id", auditLogColumns, scanAuditLog, bindAuditLog),
		db:         s.db,
	}
}

// FindByExecution returns every audit entry tied to executionID, oldest first.
func (r *AuditLogRepository) FindByExecution(executionID string) ([]AuditLog, error) {
	q := NewSafeQueryBuilder().Select(auditLogColumns...).From("audit_logs").
		Where("execution_id = ?", executionID).OrderBy("created_at ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("audit_logs.FindByExecution: %w", err)
	}
	defer rows.Close()
	var out []AuditLog
	for rows.Next() {
		v, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
