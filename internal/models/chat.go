package models

import (
	"encoding/json"
	"time"
)

// Profile is the denormalized identity shown next to a message.
type Profile struct {
	ID          string `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"displayName"`
	AvatarURL   string `db:"avatar_url" json:"avatarUrl"`
}

// Participant is one side of a conversation together with its visibility.
type Participant struct {
	Profile
	Visibility Visibility `json:"visibility"`
}

// Conversation is the persistent thread between exactly two users.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ConversationView is a list item for one user's inbox or archive.
type ConversationView struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// Thread is what opening a conversation with a peer returns.
type Thread struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// OrderedPair returns the two ids in storage order.
func OrderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func (c Conversation) VisibilityFor(userID string) (Visibility, bool) {
	for _, p := range c.Participants {
		if p.ID == userID {
			return p.Visibility, true
		}
	}
	return "", false
}

// Peer returns the participant that is not userID.
func (c Conversation) Peer(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c Conversation) HiddenFor() []string {
	return c.idsWith(VisibilityArchived)
}

func (c Conversation) PermanentlyDeletedFor() []string {
	return c.idsWith(VisibilityDeleted)
}

func (c Conversation) idsWith(v Visibility) []string {
	ids := []string{}
	for _, p := range c.Participants {
		if p.Visibility == v {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

type conversationJSON struct {
	ID                    string        `json:"id"`
	Participants          []Participant `json:"participants"`
	HiddenFor             []string      `json:"hiddenFor"`
	PermanentlyDeletedFor []string      `json:"permanentlyDeletedFor"`
	CreatedAt             time.Time     `json:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

func (c Conversation) wire() conversationJSON {
	return conversationJSON{
		ID:                    c.ID,
		Participants:          c.Participants,
		HiddenFor:             c.HiddenFor(),
		PermanentlyDeletedFor: c.PermanentlyDeletedFor(),
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

// MarshalJSON adds the derived hiddenFor and permanentlyDeletedFor lists.
func (c Conversation) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

func (v ConversationView) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		conversationJSON
		LastMessage *Message `json:"lastMessage,omitempty"`
		UnreadCount int      `json:"unreadCount"`
	}{v.wire(), v.LastMessage, v.UnreadCount})
}
