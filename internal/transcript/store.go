// Package transcript persists widget conversations to PostgreSQL for
// long-term history and lead review. The durable session document only holds
// workflow state; full message history lives here.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Roles stored per message.
const (
	RoleVisitor = "visitor"
	RoleBot     = "bot"
)

// ConversationID builds the "web:{org}:{session}" identifier.
func ConversationID(orgID, sessionID string) string {
	return fmt.Sprintf("web:%s:%s", orgID, sessionID)
}

// parseConversationID extracts orgID and sessionID from "web:{org}:{session}".
func parseConversationID(conversationID string) (orgID, sessionID string, ok bool) {
	parts := strings.Split(conversationID, ":")
	if len(parts) != 3 || parts[0] != "web" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Conversation is one widget conversation row.
type Conversation struct {
	ID                  uuid.UUID
	ConversationID      string
	OrgID               string
	PageURL             string
	Status              string
	MessageCount        int
	VisitorMessageCount int
	BotMessageCount     int
	StartedAt           time.Time
	LastMessageAt       *time.Time
	EndedAt             *time.Time
}

// Message is one stored transcript message.
type Message struct {
	ID             uuid.UUID
	ConversationID string
	Role           string
	Content        string
	WorkflowStep   string
	CreatedAt      time.Time
}

// Store persists conversations and messages. A nil store is a no-op so
// transcript persistence can be disabled without guarding every call site.
type Store struct {
	db *sql.DB
}

// NewStore creates a transcript store. Returns nil when db is nil.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// EnsureConversation creates the conversation row if needed and returns its
// UUID. Re-invocations bump the activity timestamp.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, pageURL string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}

	orgID, _, ok := parseConversationID(conversationID)
	if !ok {
		return uuid.Nil, fmt.Errorf("transcript: invalid conversation_id format: %s", conversationID)
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE conversation_id = $1`,
		conversationID,
	).Scan(&existingID)

	if err == nil {
		s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now(), existingID,
		)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("transcript: failed to check existing: %w", err)
	}

	newID := uuid.New()
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, conversation_id, org_id, page_url, status,
			message_count, visitor_message_count, bot_message_count,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, newID, conversationID, orgID, pageURL, "active", 0, 0, 0, now, now, now)
	if err != nil {
		// Another turn may have created it concurrently.
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, conversationID, pageURL)
		}
		return uuid.Nil, fmt.Errorf("transcript: failed to create: %w", err)
	}
	return newID, nil
}

// AppendMessage stores one message and updates the conversation counters.
func (s *Store) AppendMessage(ctx context.Context, conversationID, pageURL string, msg Message) error {
	if s == nil || s.db == nil {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, conversationID, pageURL); err != nil {
		return err
	}

	msgID := msg.ID
	if msgID == uuid.Nil {
		msgID = uuid.New()
	}
	timestamp := msg.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, workflow_step, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, msgID, conversationID, msg.Role, msg.Content, msg.WorkflowStep, timestamp)
	if err != nil {
		return fmt.Errorf("transcript: failed to insert message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transcript: failed to read insert result: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	counterColumn := "bot_message_count"
	if msg.Role == RoleVisitor {
		counterColumn = "visitor_message_count"
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE conversations SET
			message_count = message_count + 1,
			%s = %s + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE conversation_id = $2
	`, counterColumn, counterColumn), timestamp, conversationID)
	if err != nil {
		return fmt.Errorf("transcript: failed to update counters: %w", err)
	}
	return nil
}

// EndConversation marks a conversation as ended.
func (s *Store) EndConversation(ctx context.Context, conversationID string) error {
	if s == nil || s.db == nil {
		return nil
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = 'ended',
			ended_at = $1,
			updated_at = $1
		WHERE conversation_id = $2 AND ended_at IS NULL
	`, now, conversationID)
	return err
}

// GetConversation retrieves a conversation by its web id. Missing rows
// return nil without error.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var conv Conversation
	var lastMessageAt, endedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, org_id, page_url, status,
			   message_count, visitor_message_count, bot_message_count,
			   started_at, last_message_at, ended_at
		FROM conversations
		WHERE conversation_id = $1
	`, conversationID).Scan(
		&conv.ID, &conv.ConversationID, &conv.OrgID, &conv.PageURL, &conv.Status,
		&conv.MessageCount, &conv.VisitorMessageCount, &conv.BotMessageCount,
		&conv.StartedAt, &lastMessageAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: failed to get: %w", err)
	}

	if lastMessageAt.Valid {
		conv.LastMessageAt = &lastMessageAt.Time
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return &conv, nil
}

// GetMessages retrieves a conversation's messages in order.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, conversation_id, role, content,
			   COALESCE(workflow_step, ''), created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.WorkflowStep, &msg.CreatedAt,
		); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
