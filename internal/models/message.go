package models

import "time"

// MaxMessageRunes bounds a message body.
const MaxMessageRunes = 2000

// Message represents a direct message. Only IsRead ever changes after insert.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	SenderID       string    `db:"sender_id" json:"senderId"`
	ReceiverID     string    `db:"receiver_id" json:"receiverId"`
	Body           string    `db:"body" json:"message"`
	IsRead         bool      `db:"is_read" json:"isRead"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`

	Sender *Profile `db:"-" json:"sender,omitempty"`
}
