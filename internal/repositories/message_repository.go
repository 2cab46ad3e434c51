package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/id"
	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID string, senderID string, receiverID string, body string) (models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID string, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	CountUnreadForConversation(ctx context.Context, conversationID string, userID string) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores an unread message.
func (r *MessageRepo) Create(ctx context.Context, conversationID string, senderID string, receiverID string, body string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, conversation_id, sender_id, receiver_id, body, is_read, created_at`,
		id.Generate(), conversationID, senderID, receiverID, body).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Get retrieves a single message with its sender resolved.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+`
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id
        WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("select message: %w", err)
	}
	return row.toModel(), nil
}

// ListForConversation returns the thread oldest first.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+`
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id
        WHERE m.conversation_id=$1
        ORDER BY m.created_at ASC, m.id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

// MarkRead flags every unread message addressed to userID in the
// conversation. Messages the user sent are untouched.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID string, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE conversation_id=$1 AND receiver_id=$2 AND is_read = FALSE`, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread counts unread messages for userID across conversations the
// user has not permanently deleted.
func (r *MessageRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        JOIN conversation_participants cp ON cp.conversation_id = m.conversation_id AND cp.user_id = m.receiver_id
        WHERE m.receiver_id=$1 AND m.is_read = FALSE AND cp.visibility <> $2`, userID, models.VisibilityDeleted)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// CountUnreadForConversation is CountUnread restricted to one conversation.
func (r *MessageRepo) CountUnreadForConversation(ctx context.Context, conversationID string, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        JOIN conversation_participants cp ON cp.conversation_id = m.conversation_id AND cp.user_id = m.receiver_id
        WHERE m.conversation_id=$1 AND m.receiver_id=$2 AND m.is_read = FALSE AND cp.visibility <> $3`,
		conversationID, userID, models.VisibilityDeleted)
	if err != nil {
		return 0, fmt.Errorf("count unread for conversation: %w", err)
	}
	return count, nil
}
