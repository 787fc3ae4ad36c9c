package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ToolResultStatus is spec.md §4.8 ToolResult.status.
type ToolResultStatus string

const (
	ToolResultSuccess   ToolResultStatus = "Success"
	ToolResultError     ToolResultStatus = "Error"
	ToolResultCancelled ToolResultStatus = "Cancelled"
)

// ToolCall is one persisted tool invocation and its structured ToolResult
// (spec.md §4.8, §4.5).
type ToolCall struct {
	ID              string
	ExecutionID     string
	Seq             int
	Name            string
	Input           string // JSON
	Status          ToolResultStatus
	CancelReason    string
	Output          string // JSON content blocks
	ExtInfo         string // JSON
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

func (ToolCall) TableName() string { return "tool_calls" }

var toolCallColumns = []string{
	"id", "execution_id", "seq", "name", "input", "status",
	"cancel_reason", "output", "ext_info", "execution_time_ms", "created_at",
}

func scanToolCall(row Scanner_Row) (ToolCall, error) {
	var t ToolCall
	var cancelReason, output, extInfo sql.NullString
	var createdAt string
	if err := row.Scan(&t.ID, &t.ExecutionID, &t.Seq, &t.Name, &t.Input, &t.Status,
		&cancelReason, &output, &extInfo, &t.ExecutionTimeMs, &createdAt); err != nil {
		return t, err
	}
	t.CancelReason = cancelReason.String
	t.Output = output.String
	t.ExtInfo = extInfo.String
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func bindToolCall(t ToolCall) []any {
	return []any{
		t.ID, t.ExecutionID, t.Seq, t.Name, t.Input, string(t.Status),
		t.CancelReason, t.Output, t.ExtInfo, t.ExecutionTimeMs, t.CreatedAt.UTC().Format(timeFmt),
	}
}

// ToolCallRepository is the ToolCalls specialization.
type ToolCallRepository struct {
	*Repository[ToolCall]
	db *sql.DB
}

func (s *Store) ToolCalls() *ToolCallRepository {
	return &ToolCallRepository{
		Repository: NewRepository(s.db, "tool_calls", "id", toolCallColumns, scanToolCall, bindToolCall),
		db:         s.db,
	}
}

// FindByExecution returns every tool call of an execution in seq order —
// spec.md §8's batch-ordering property is verified against this sequence.
func (r *ToolCallRepository) FindByExecution(executionID string) ([]ToolCall, error) {
	q := NewSafeQueryBuilder().Select(toolCallColumns...).From("tool_calls").
		Where("execution_id = ?", executionID).OrderBy("seq ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("tool_calls.FindByExecution: %w", err)
	}
	defer rows.Close()
	var out []ToolCall
	for rows.Next() {
		v, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// NextSeq returns the next free seq for executionID.
func (r *ToolCallRepository) NextSeq(executionID string) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(seq) FROM tool_calls WHERE execution_id = ?", executionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("tool_calls.NextSeq: %w", err)
	}
	return int(max.Int64) + 1, nil
}
