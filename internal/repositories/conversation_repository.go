package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/id"
	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrSelfConversation     = errors.New("cannot create conversation with self")
)

// Transition maps a participant's current visibility to the next one.
type Transition func(models.Visibility) models.Visibility

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetOrCreateForPair(ctx context.Context, userID string, otherUserID string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string, view models.View) ([]models.ConversationView, error)
	ApplyTransition(ctx context.Context, conversationID string, userID string, transition Transition) (models.Visibility, error)
	Touch(ctx context.Context, conversationID string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetOrCreateForPair returns the conversation for the unordered pair,
// creating it when absent. Opening a thread the caller had deleted brings
// it back for the caller only.
func (r *ConversationRepo) GetOrCreateForPair(ctx context.Context, userID string, otherUserID string) (models.Conversation, error) {
	if userID == otherUserID {
		return models.Conversation{}, ErrSelfConversation
	}
	user1, user2 := models.OrderedPair(userID, otherUserID)

	var conversationID string
	err := r.db.GetContext(ctx, &conversationID, `SELECT id FROM conversations WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		conversationID, err = r.create(ctx, user1, user2)
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if _, err := r.ApplyTransition(ctx, conversationID, userID, models.Visibility.Revisit); err != nil {
		return models.Conversation{}, err
	}
	return r.Get(ctx, conversationID)
}

func (r *ConversationRepo) create(ctx context.Context, user1, user2 string) (string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	newID := id.Generate()
	res, err := tx.ExecContext(ctx, `INSERT INTO conversations (id, user1_id, user2_id) VALUES ($1, $2, $3)
        ON CONFLICT (user1_id, user2_id) DO NOTHING`, newID, user1, user2)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if inserted == 0 {
		// lost a race with a concurrent opener of the same pair
		var existing string
		if err := tx.GetContext(ctx, &existing, `SELECT id FROM conversations WHERE user1_id=$1 AND user2_id=$2`, user1, user2); err != nil {
			return "", fmt.Errorf("select existing conversation: %w", err)
		}
		return existing, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, visibility)
        VALUES ($1, $2, $4), ($1, $3, $4)`, newID, user1, user2, models.VisibilityActive); err != nil {
		return "", fmt.Errorf("insert participants: %w", err)
	}
	return newID, tx.Commit()
}

// Get fetches a conversation with its participants.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, `SELECT id, user1_id, user2_id, created_at, updated_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}

	participants, err := r.participants(ctx, []string{row.ID})
	if err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{
		ID:           row.ID,
		Participants: participants[row.ID],
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

// ListForUser returns the user's conversations for a view, most recently
// updated first, each with its latest message and the user's unread count.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string, view models.View) ([]models.ConversationView, error) {
	query := `SELECT c.id, c.user1_id, c.user2_id, c.created_at, c.updated_at,
            (SELECT COUNT(*) FROM messages m
                WHERE m.conversation_id = c.id AND m.receiver_id = $1 AND m.is_read = FALSE) AS unread_count
        FROM conversations c
        JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
        WHERE cp.visibility = $2
        ORDER BY c.updated_at DESC, c.id DESC`
	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, view.Visibility()); err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	if len(rows) == 0 {
		return []models.ConversationView{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	participants, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	latest, err := r.latestMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]models.ConversationView, 0, len(rows))
	for _, row := range rows {
		item := models.ConversationView{
			Conversation: models.Conversation{
				ID:           row.ID,
				Participants: participants[row.ID],
				CreatedAt:    row.CreatedAt,
				UpdatedAt:    row.UpdatedAt,
			},
			UnreadCount: row.UnreadCount,
		}
		if msg, ok := latest[row.ID]; ok {
			item.LastMessage = &msg
		}
		result = append(result, item)
	}
	return result, nil
}

// ApplyTransition moves the participant's visibility through transition
// and returns the new state.
func (r *ConversationRepo) ApplyTransition(ctx context.Context, conversationID string, userID string, transition Transition) (models.Visibility, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	next, err := applyTransition(ctx, tx, conversationID, userID, transition)
	if err != nil {
		return "", err
	}
	return next, tx.Commit()
}

// Touch records new activity: bumps updated_at and resurfaces the
// conversation for both participants.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id=$1`, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConversationNotFound
	}

	var userIDs []string
	if err := tx.SelectContext(ctx, &userIDs, `SELECT user_id FROM conversation_participants WHERE conversation_id=$1`, conversationID); err != nil {
		return fmt.Errorf("select participants: %w", err)
	}
	for _, userID := range userIDs {
		if _, err := applyTransition(ctx, tx, conversationID, userID, models.Visibility.Resurface); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyTransition(ctx context.Context, tx *sqlx.Tx, conversationID, userID string, transition Transition) (models.Visibility, error) {
	var current models.Visibility
	err := tx.GetContext(ctx, &current, `SELECT visibility FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2 FOR UPDATE`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotParticipant
	}
	if err != nil {
		return "", fmt.Errorf("select visibility: %w", err)
	}

	next := transition(current)
	if next == current {
		return current, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversation_participants SET visibility=$3
        WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID, next); err != nil {
		return "", fmt.Errorf("update visibility: %w", err)
	}
	return next, nil
}

func (r *ConversationRepo) participants(ctx context.Context, conversationIDs []string) (map[string][]models.Participant, error) {
	query := `SELECT cp.conversation_id, cp.user_id, cp.visibility,
            COALESCE(p.display_name, '') AS display_name,
            COALESCE(p.avatar_url, '') AS avatar_url
        FROM conversation_participants cp
        LEFT JOIN profiles p ON p.id = cp.user_id
        WHERE cp.conversation_id = ANY($1)
        ORDER BY cp.conversation_id, cp.user_id`
	var rows []participantRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(conversationIDs)); err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	out := make(map[string][]models.Participant, len(conversationIDs))
	for _, row := range rows {
		out[row.ConversationID] = append(out[row.ConversationID], row.toModel())
	}
	return out, nil
}

func (r *ConversationRepo) latestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	query := `SELECT DISTINCT ON (m.conversation_id) ` + messageColumns + `
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id
        WHERE m.conversation_id = ANY($1)
        ORDER BY m.conversation_id, m.created_at DESC, m.id DESC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(conversationIDs)); err != nil {
		return nil, fmt.Errorf("select latest messages: %w", err)
	}
	out := make(map[string]models.Message, len(rows))
	for _, row := range rows {
		out[row.ConversationID] = row.toModel()
	}
	return out, nil
}
