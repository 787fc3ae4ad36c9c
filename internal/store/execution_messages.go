package store

import (
	"database/sql"
	"fmt"
)

// ExecutionMessage links a Message into the sequence belonging to one
// Execution (spec.md §3: "an execution is one user-prompt-to-terminal
// cycle"), with its own monotonic per-execution seq.
type ExecutionMessage struct {
	ExecutionID string
	MessageID   string
	Seq         int
}

// ExecutionMessageRepository has no single primary key column, so it does
// not use the generic Repository[T] — its composite key and append-only
// usage pattern don't fit FindByID/Update.
type ExecutionMessageRepository struct {
	db *sql.DB
}

func (s *Store) ExecutionMessages() *ExecutionMessageRepository {
	return &ExecutionMessageRepository{db: s.db}
}

// Append links messageID to executionID at the next free seq.
func (r *ExecutionMessageRepository) Append(executionID, messageID string) error {
	var max sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(seq) FROM execution_messages WHERE execution_id = ?", executionID).Scan(&max)
	if err != nil {
		return fmt.Errorf("execution_messages.Append: %w", err)
	}
	seq := int(max.Int64) + 1
	_, err = r.db.Exec(
		"INSERT INTO execution_messages (execution_id, message_id, seq) VALUES (?, ?, ?)",
		executionID, messageID, seq,
	)
	if err != nil {
		return fmt.Errorf("execution_messages.Append: %w", err)
	}
	return nil
}

// FindByExecution returns every message id belonging to executionID in seq order.
func (r *ExecutionMessageRepository) FindByExecution(executionID string) ([]string, error) {
	rows, err := r.db.Query(
		"SELECT message_id FROM execution_messages WHERE execution_id = ? ORDER BY seq ASC",
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("execution_messages.FindByExecution: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
