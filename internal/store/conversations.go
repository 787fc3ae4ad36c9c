package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Conversation groups Sessions (spec.md §3).
type Conversation struct {
	ID            string
	Title         string
	WorkspacePath string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Conversation) TableName() string { return "conversations" }

var conversationColumns = []string{"id", "title", "workspace_path", "created_at", "updated_at"}

func scanConversation(row Scanner_Row) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Title, &c.WorkspacePath, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

func bindConversation(c Conversation) []any {
	return []any{c.ID, c.Title, c.WorkspacePath, c.CreatedAt.UTC().Format(timeFmt), c.UpdatedAt.UTC().Format(timeFmt)}
}

// ConversationRepository is the spec.md §4.5 Conversations specialization.
type ConversationRepository struct {
	*Repository[Conversation]
	db *sql.DB
}

func (s *Store) Conversations() *ConversationRepository {
	return &ConversationRepository{
		Repository: NewRepository(s.db, "conversations", "id", conversationColumns, scanConversation, bindConversation),
		db:         s.db,
	}
}

// Touch bumps updated_at to now, used whenever a new session/execution is
// added to the conversation.
func (r *ConversationRepository) Touch(id string) error {
	_, err := r.db.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now().UTC().Format(timeFmt), id)
	if err != nil {
		return fmt.Errorf("conversations.Touch: %w", err)
	}
	return nil
}
