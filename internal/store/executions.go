package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ExecutionStatus is the spec.md §3 Execution.status tag.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionCompleted ExecutionStatus = "Completed"
	ExecutionCancelled ExecutionStatus = "Cancelled"
	ExecutionError     ExecutionStatus = "Error"
)

// Execution is one user-prompt-to-terminal cycle (spec.md §3).
type Execution struct {
	ID             string
	SessionID      string
	Status         ExecutionStatus
	IterationCount int
	EmptyCount     int
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	SystemPrompt   string
	ConfigSnapshot string
	ErrorReason    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Execution) TableName() string { return "executions" }

var executionColumns = []string{
	"id", "session_id", "status", "iteration_count", "empty_count",
	"input_tokens", "output_tokens", "cost_usd", "system_prompt",
	"config_snapshot", "error_reason", "created_at", "updated_at",
}

func scanExecution(row Scanner_Row) (Execution, error) {
	var e Execution
	var createdAt, updatedAt string
	var systemPrompt, configSnapshot, errorReason sql.NullString
	if err := row.Scan(&e.ID, &e.SessionID, &e.Status, &e.IterationCount, &e.EmptyCount,
		&e.InputTokens, &e.OutputTokens, &e.CostUSD, &systemPrompt, &configSnapshot,
		&errorReason, &createdAt, &updatedAt); err != nil {
		return e, err
	}
	e.SystemPrompt = systemPrompt.String
	e.ConfigSnapshot = configSnapshot.String
	e.ErrorReason = errorReason.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

func bindExecution(e Execution) []any {
	return []any{
		e.ID, e.SessionID, string(e.Status), e.IterationCount, e.EmptyCount,
		e.InputTokens, e.OutputTokens, e.CostUSD, e.SystemPrompt,
		e.ConfigSnapshot, e.ErrorReason, e.CreatedAt.UTC().Format(timeFmt), e.UpdatedAt.UTC().Format(timeFmt),
	}
}

// ExecutionRepository is the Executions specialization (spec.md §4.5).
type ExecutionRepository struct {
	*Repository[Execution]
	db *sql.DB
}

func (s *Store) Executions() *ExecutionRepository {
	return &ExecutionRepository{
		Repository: NewRepository(s.db, "executions", "id", executionColumns, scanExecution, bindExecution),
		db:         s.db,
	}
}

// RunningForSession returns the in-progress execution for sessionID, if any.
// Spec.md §3 invariant: "at most one Running execution per session" — callers
// must check this before starting a new one.
func (r *ExecutionRepository) RunningForSession(sessionID string) (Execution, bool, error) {
	q := NewSafeQueryBuilder().Select(executionColumns...).From("executions").
		Where("session_id = ? AND status = ?", sessionID, string(ExecutionRunning))
	sqlStr, args := q.Build()
	e, err := scanExecution(r.db.QueryRow(sqlStr, args...))
	if err == sql.ErrNoRows {
		return Execution{}, false, nil
	}
	if err != nil {
		return Execution{}, false, fmt.Errorf("executions.RunningForSession: %w", err)
	}
	return e, true, nil
}

// UpdateStatus transitions an execution's status, optionally recording an
// error reason, and bumps updated_at.
func (r *ExecutionRepository) UpdateStatus(id string, status ExecutionStatus, errorReason string) error {
	_, err := r.db.Exec(
		"UPDATE executions SET status = ?, error_reason = ?, updated_at = ? WHERE id = ?",
		string(status), errorReason, time.Now().UTC().Format(timeFmt), id,
	)
	if err != nil {
		return fmt.Errorf("executions.UpdateStatus: %w", err)
	}
	return nil
}

// IncrementIteration bumps iteration_count by one and returns the new count.
func (r *ExecutionRepository) IncrementIteration(id string) (int, error) {
	if _, err := r.db.Exec("UPDATE executions SET iteration_count = iteration_count + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeFmt), id); err != nil {
		return 0, fmt.Errorf("executions.IncrementIteration: %w", err)
	}
	var n int
	if err := r.db.QueryRow("SELECT iteration_count FROM executions WHERE id = ?", id).Scan(&n); err != nil {
		return 0, fmt.Errorf("executions.IncrementIteration: %w", err)
	}
	return n, nil
}

// IncrementEmpty bumps empty_count by one and returns the new count, used to
// enforce the N_empty_limit transition from spec.md §4.10.
func (r *ExecutionRepository) IncrementEmpty(id string) (int, error) {
	if _, err := r.db.Exec("UPDATE executions SET empty_count = empty_count + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeFmt), id); err != nil {
		return 0, fmt.Errorf("executions.IncrementEmpty: %w", err)
	}
	var n int
	if err := r.db.QueryRow("SELECT empty_count FROM executions WHERE id = ?", id).Scan(&n); err != nil {
		return 0, fmt.Errorf("executions.IncrementEmpty: %w", err)
	}
	return n, nil
}

// AddUsage accumulates token/cost totals onto an execution.
func (r *ExecutionRepository) AddUsage(id string, inputTokens, outputTokens int, costUSD float64) error {
	_, err := r.db.Exec(
		"UPDATE executions SET input_tokens = input_tokens + ?, output_tokens = output_tokens + ?, cost_usd = cost_usd + ?, updated_at = ? WHERE id = ?",
		inputTokens, outputTokens, costUSD, time.Now().UTC().Format(timeFmt), id,
	)
	if err != nil {
		return fmt.Errorf("executions.AddUsage: %w", err)
	}
	return nil
}
