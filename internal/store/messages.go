package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MessageRole is spec.md §3 Message.role.
type MessageRole string

const (
	RoleUser      MessageRole = "User"
	RoleAssistant MessageRole = "Assistant"
	RoleSystem    MessageRole = "System"
)

// MessageStatus tracks a streaming message's lifecycle: "Streaming" exactly
// once transitions to one of "Completed"/"Cancelled"/"Error" (spec.md §3).
type MessageStatus string

const (
	MessageStreaming  MessageStatus = "Streaming"
	MessageCompleted  MessageStatus = "Completed"
	MessageCancelled  MessageStatus = "Cancelled"
	MessageErrorState MessageStatus = "Error"
)

// Message belongs to a session; its content lives in MessageBlock rows.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	Seq       int
	IsSummary bool
	Status    MessageStatus
	CreatedAt time.Time
}

func (Message) TableName() string { return "messages" }

var messageColumns = []string{"id", "session_id", "role", "seq", "is_summary", "status", "created_at"}

func scanMessage(row Scanner_Row) (Message, error) {
	var m Message
	var isSummary int
	var createdAt string
	if err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Seq, &isSummary, &m.Status, &createdAt); err != nil {
		return m, err
	}
	m.IsSummary = isSummary != 0
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func bindMessage(m Message) []any {
	summary := 0
	if m.IsSummary {
		summary = 1
	}
	return []any{m.ID, m.SessionID, string(m.Role), m.Seq, summary, string(m.Status), m.CreatedAt.UTC().Format(timeFmt)}
}

// MessageRepository is the Messages specialization (spec.md §4.5).
type MessageRepository struct {
	*Repository[Message]
	db *sql.DB
}

func (s *Store) Messages() *MessageRepository {
	return &MessageRepository{
		Repository: NewRepository(s.db, "messages", "id", messageColumns, scanMessage, bindMessage),
		db:         s.db,
	}
}

// FindBySession returns every message of a session in monotonic seq order —
// the "canonical history" spec.md §4.9 says the ring buffer merely windows.
func (r *MessageRepository) FindBySession(sessionID string) ([]Message, error) {
	q := NewSafeQueryBuilder().Select(messageColumns...).From("messages").
		Where("session_id = ?", sessionID).OrderBy("seq ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("messages.FindBySession: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		v, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// NextSeq returns the next free seq number for sessionID (monotonic
// per-session sequence numbers, spec.md §5).
func (r *MessageRepository) NextSeq(sessionID string) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(seq) FROM messages WHERE session_id = ?", sessionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("messages.NextSeq: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// SetStatus transitions a message's status (Streaming -> terminal, exactly
// once per spec.md §3).
func (r *MessageRepository) SetStatus(id string, status MessageStatus) error {
	_, err := r.db.Exec("UPDATE messages SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("messages.SetStatus: %w", err)
	}
	return nil
}

// BlockKind tags a MessageBlock's content (spec.md §3 content block union).
type BlockKind string

const (
	BlockUserText  BlockKind = "UserText"
	BlockUserImage BlockKind = "UserImage"
	BlockThinking  BlockKind = "Thinking"
	BlockText      BlockKind = "Text"
	BlockTool      BlockKind = "Tool"
	BlockError     BlockKind = "Error"
)

// ToolBlockStatus is the status of a Tool content block.
type ToolBlockStatus string

const (
	ToolBlockRunning ToolBlockStatus = "Running"
	ToolBlockSuccess ToolBlockStatus = "Success"
	ToolBlockError   ToolBlockStatus = "Error"
)

// MessageBlock is one content block within a Message.
type MessageBlock struct {
	ID           string
	MessageID    string
	Seq          int
	Kind         BlockKind
	Content      string
	ToolName     string
	ToolStatus   ToolBlockStatus
	ToolInput    string // JSON
	ToolOutput   string // JSON
	IsStreaming  bool
}

func (MessageBlock) TableName() string { return "message_blocks" }

var blockColumns = []string{
	"id", "message_id", "seq", "kind", "content", "tool_name",
	"tool_status", "tool_input", "tool_output", "is_streaming",
}

func scanBlock(row Scanner_Row) (MessageBlock, error) {
	var b MessageBlock
	var content, toolName, toolStatus, toolInput, toolOutput sql.NullString
	var streaming int
	if err := row.Scan(&b.ID, &b.MessageID, &b.Seq, &b.Kind, &content, &toolName,
		&toolStatus, &toolInput, &toolOutput, &streaming); err != nil {
		return b, err
	}
	b.Content = content.String
	b.ToolName = toolName.String
	b.ToolStatus = ToolBlockStatus(toolStatus.String)
	b.ToolInput = toolInput.String
	b.ToolOutput = toolOutput.String
	b.IsStreaming = streaming != 0
	return b, nil
}

func bindBlock(b MessageBlock) []any {
	streaming := 0
	if b.IsStreaming {
		streaming = 1
	}
	return []any{
		b.ID, b.MessageID, b.Seq, string(b.Kind), b.Content, b.ToolName,
		string(b.ToolStatus), b.ToolInput, b.ToolOutput, streaming,
	}
}

// MessageBlockRepository is the MessageBlocks specialization, underlying
// Message.content (spec.md §3).
type MessageBlockRepository struct {
	*Repository[MessageBlock]
	db *sql.DB
}

func (s *Store) MessageBlocks() *MessageBlockRepository {
	return &MessageBlockRepository{
		Repository: NewRepository(s.db, "message_blocks", "id", blockColumns, scanBlock, bindBlock),
		db:         s.db,
	}
}

// FindByMessage returns every block of a message in seq order.
func (r *MessageBlockRepository) FindByMessage(messageID string) ([]MessageBlock, error) {
	q := NewSafeQueryBuilder().Select(blockColumns...).From("message_blocks").
		Where("message_id = ?", messageID).OrderBy("seq ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("message_blocks.FindByMessage: %w", err)
	}
	defer rows.Close()
	var out []MessageBlock
	for rows.Next() {
		v, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateContent appends/overwrites streaming content for a block (used by
// the ReAct executor's Delta handling, spec.md §4.10 step 3).
func (r *MessageBlockRepository) UpdateContent(id, content string, streaming bool) error {
	s := 0
	if streaming {
		s = 1
	}
	_, err := r.db.Exec("UPDATE message_blocks SET content = ?, is_streaming = ? WHERE id = ?", content, s, id)
	if err != nil {
		return fmt.Errorf("message_blocks.UpdateContent: %w", err)
	}
	return nil
}
