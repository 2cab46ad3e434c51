package repositories

import (
	"time"

	"messaging-service/internal/models"
)

// messageColumns selects a message joined with its sender profile; the
// query must alias messages as m and profiles as p.
const messageColumns = `m.id, m.conversation_id, m.sender_id, m.receiver_id, m.body, m.is_read, m.created_at,
        COALESCE(p.display_name, '') AS sender_display_name,
        COALESCE(p.avatar_url, '') AS sender_avatar_url`

type messageRow struct {
	ID                string    `db:"id"`
	ConversationID    string    `db:"conversation_id"`
	SenderID          string    `db:"sender_id"`
	ReceiverID        string    `db:"receiver_id"`
	Body              string    `db:"body"`
	IsRead            bool      `db:"is_read"`
	CreatedAt         time.Time `db:"created_at"`
	SenderDisplayName string    `db:"sender_display_name"`
	SenderAvatarURL   string    `db:"sender_avatar_url"`
}

func (r messageRow) toModel() models.Message {
	return models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		ReceiverID:     r.ReceiverID,
		Body:           r.Body,
		IsRead:         r.IsRead,
		CreatedAt:      r.CreatedAt,
		Sender: &models.Profile{
			ID:          r.SenderID,
			DisplayName: r.SenderDisplayName,
			AvatarURL:   r.SenderAvatarURL,
		},
	}
}

type conversationRow struct {
	ID          string    `db:"id"`
	User1ID     string    `db:"user1_id"`
	User2ID     string    `db:"user2_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	UnreadCount int       `db:"unread_count"`
}

type participantRow struct {
	ConversationID string `db:"conversation_id"`
	UserID         string `db:"user_id"`
	Visibility     string `db:"visibility"`
	DisplayName    string `db:"display_name"`
	AvatarURL      string `db:"avatar_url"`
}

func (r participantRow) toModel() models.Participant {
	return models.Participant{
		Profile: models.Profile{
			ID:          r.UserID,
			DisplayName: r.DisplayName,
			AvatarURL:   r.AvatarURL,
		},
		Visibility: models.Visibility(r.Visibility),
	}
}
