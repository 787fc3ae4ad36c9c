package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// CommandHistoryEntry records a shell command run within a workspace,
// generalized from the teacher's internal/history package (JSON-file
// sessions) into a repository row with frecency scoring (GLOSSARY).
type CommandHistoryEntry struct {
	ID            string
	WorkspacePath string
	Command       string
	RunCount      int
	LastRunAt     time.Time
	CreatedAt     time.Time
}

func (CommandHistoryEntry) TableName() string { return "command_history" }

var commandHistoryColumns = []string{"id", "workspace_path", "command", "run_count", "last_run_at", "created_at"}

func scanCommandHistory(row Scanner_Row) (CommandHistoryEntry, error) {
	var c CommandHistoryEntry
	var lastRun, createdAt string
	if err := row.Scan(&c.ID, &c.WorkspacePath, &c.Command, &c.RunCount, &lastRun, &createdAt); err != nil {
		return c, err
	}
	c.LastRunAt = parseTime(lastRun)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func bindCommandHistory(c CommandHistoryEntry) []any {
	return []any{c.ID, c.WorkspacePath, c.Command, c.RunCount, c.LastRunAt.UTC().Format(timeFmt), c.CreatedAt.UTC().Format(timeFmt)}
}

// CommandHistoryRepository is the CommandHistory specialization.
type CommandHistoryRepository struct {
	*Repository[CommandHistoryEntry]
	db *sql.DB
}

func (s *Store) CommandHistory() *CommandHistoryRepository {
	return &CommandHistoryRepository{
		Repository: NewRepository(s.db, "command_history", "id", commandHistoryColumns, scanCommandHistory, bindCommandHistory),
		db:         s.db,
	}
}

// RecordRun upserts (workspacePath, command), bumping run_count and
// last_run_at, creating the row with id if it doesn't exist yet.
func (r *CommandHistoryRepository) RecordRun(id, workspacePath, command string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := r.db.Exec(`
		INSERT INTO command_history (id, workspace_path, command, run_count, last_run_at, created_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(workspace_path, command) DO UPDATE SET
			run_count = run_count + 1,
			last_run_at = excluded.last_run_at
	`, id, workspacePath, command, now, now)
	if err != nil {
		return fmt.Errorf("command_history.RecordRun: %w", err)
	}
	return nil
}

// TopByFrecency returns up to limit commands for workspacePath ranked by
// frecency score, highest first.
func (r *CommandHistoryRepository) TopByFrecency(workspacePath string, limit int) ([]CommandHistoryEntry, error) {
	q := NewSafeQueryBuilder().Select(commandHistoryColumns...).From("command_history").
		Where("workspace_path = ?", workspacePath)
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("command_history.TopByFrecency: %w", err)
	}
	defer rows.Close()
	var all []CommandHistoryEntry
	for rows.Next() {
		v, err := scanCommandHistory(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return frecencyScore(all[i].RunCount, all[i].LastRunAt, 7*24*time.Hour) >
			frecencyScore(all[j].RunCount, all[j].LastRunAt, 7*24*time.Hour)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
