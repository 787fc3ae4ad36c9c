package store

import (
	"database/sql"
	"fmt"
	"time"
)

// FileState is spec.md §3 FileContextEntry.state.
type FileState string

const (
	FileActive FileState = "Active"
	FileStale  FileState = "Stale"
)

// FileSource is spec.md §3 FileContextEntry's source of last update.
type FileSource string

const (
	SourceReadTool      FileSource = "ReadTool"
	SourceAgentEdited   FileSource = "AgentEdited"
	SourceUserEdited    FileSource = "UserEdited"
	SourceFileMentioned FileSource = "FileMentioned"
)

// FileContextEntry is the per (conversation, normalized path) record from
// spec.md §3/§4.9.
type FileContextEntry struct {
	ConversationID string
	Path           string
	State          FileState
	Source         FileSource
	AgentReadAt    *time.Time
	AgentEditAt    *time.Time
	UserEditAt     *time.Time
	UpdatedAt      time.Time
}

// FileContextRepository has a composite (conversation_id, path) primary
// key, so like ExecutionMessages it sidesteps the generic Repository[T].
type FileContextRepository struct {
	db *sql.DB
}

func (s *Store) FileContext() *FileContextRepository {
	return &FileContextRepository{db: s.db}
}

func scanFileContextEntry(row Scanner_Row) (FileContextEntry, error) {
	var e FileContextEntry
	var agentRead, agentEdit, userEdit sql.NullString
	var updatedAt string
	if err := row.Scan(&e.ConversationID, &e.Path, &e.State, &e.Source,
		&agentRead, &agentEdit, &userEdit, &updatedAt); err != nil {
		return e, err
	}
	if agentRead.Valid {
		e.AgentReadAt = parseTimePtr(&agentRead.String)
	}
	if agentEdit.Valid {
		e.AgentEditAt = parseTimePtr(&agentEdit.String)
	}
	if userEdit.Valid {
		e.UserEditAt = parseTimePtr(&userEdit.String)
	}
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

var fileContextColumns = []string{
	"conversation_id", "path", "state", "source",
	"agent_read_at", "agent_edit_at", "user_edit_at", "updated_at",
}

// Find returns the existing entry for (conversationID, path), if any.
func (r *FileContextRepository) Find(conversationID, path string) (FileContextEntry, bool, error) {
	q := NewSafeQueryBuilder().Select(fileContextColumns...).From("file_context").
		Where("conversation_id = ? AND path = ?", conversationID, path)
	sqlStr, args := q.Build()
	e, err := scanFileContextEntry(r.db.QueryRow(sqlStr, args...))
	if err == sql.ErrNoRows {
		return FileContextEntry{}, false, nil
	}
	if err != nil {
		return FileContextEntry{}, false, fmt.Errorf("file_context.Find: %w", err)
	}
	return e, true, nil
}

// Upsert writes (or replaces) the entry, keyed by (conversation_id, path).
func (r *FileContextRepository) Upsert(e FileContextEntry) error {
	_, err := r.db.Exec(`
		INSERT INTO file_context (conversation_id, path, state, source, agent_read_at, agent_edit_at, user_edit_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, path) DO UPDATE SET
			state = excluded.state,
			source = excluded.source,
			agent_read_at = excluded.agent_read_at,
			agent_edit_at = excluded.agent_edit_at,
			user_edit_at = excluded.user_edit_at,
			updated_at = excluded.updated_at
	`,
		e.ConversationID, e.Path, string(e.State), string(e.Source),
		formatTimePtr(e.AgentReadAt), formatTimePtr(e.AgentEditAt), formatTimePtr(e.UserEditAt),
		e.UpdatedAt.UTC().Format(timeFmt),
	)
	if err != nil {
		return fmt.Errorf("file_context.Upsert: %w", err)
	}
	return nil
}

// FindStale returns every Stale entry for conversationID (the "S5" scenario's
// get_stale_files).
func (r *FileContextRepository) FindStale(conversationID string) ([]FileContextEntry, error) {
	q := NewSafeQueryBuilder().Select(fileContextColumns...).From("file_context").
		Where("conversation_id = ? AND state = ?", conversationID, string(FileStale))
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("file_context.FindStale: %w", err)
	}
	defer rows.Close()
	var out []FileContextEntry
	for rows.Next() {
		v, err := scanFileContextEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// FindByConversation returns every entry for conversationID.
func (r *FileContextRepository) FindByConversation(conversationID string) ([]FileContextEntry, error) {
	q := NewSafeQueryBuilder().Select(fileContextColumns...).From("file_context").
		Where("conversation_id = ?", conversationID)
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("file_context.FindByConversation: %w", err)
	}
	defer rows.Close()
	var out []FileContextEntry
	for rows.Next() {
		v, err := scanFileContextEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes entries whose updated_at predates cutoff — the
// spec.md §3 TTL retention policy (default 14d, enforced by the caller).
func (r *FileContextRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM file_context WHERE updated_at < ?", cutoff.UTC().Format(timeFmt))
	if err != nil {
		return 0, fmt.Errorf("file_context.PurgeOlderThan: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
