package store

import (
	"database/sql"
	"time"
)

// Session groups Executions under a Conversation (spec.md §3).
type Session struct {
	ID             string
	ConversationID string
	CreatedAt      time.Time
}

func (Session) TableName() string { return "sessions" }

var sessionColumns = []string{"id", "conversation_id", "created_at"}

func scanSession(row Scanner_Row) (Session, error) {
	var s Session
	var createdAt string
	if err := row.Scan(&s.ID, &s.ConversationID, &createdAt); err != nil {
		return s, err
	}
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}

func bindSession(s Session) []any {
	return []any{s.ID, s.ConversationID, s.CreatedAt.UTC().Format(timeFmt)}
}

// SessionRepository is the Sessions specialization.
type SessionRepository struct {
	*Repository[Session]
	db *sql.DB
}

func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{
		Repository: NewRepository(s.db, "sessions", "id", sessionColumns, scanSession, bindSession),
		db:         s.db,
	}
}

// FindByConversation returns every session belonging to conversationID, in
// creation order.
func (r *SessionRepository) FindByConversation(conversationID string) ([]Session, error) {
	q := NewSafeQueryBuilder().Select(sessionColumns...).From("sessions").
		Where("conversation_id = ?", conversationID).OrderBy("created_at ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		v, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
