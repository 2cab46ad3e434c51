package models

import (
	"encoding/json"

	"messaging-service/internal/errs"
)

// EventType names a live channel event.
type EventType string

// Client to server.
const (
	EventAnnounce EventType = "announce"
	EventSend     EventType = "send"
)

// Server to client.
const (
	EventPresenceSnapshot EventType = "presenceSnapshot"
	EventMessageDelivered EventType = "messageDelivered"
	EventNotification     EventType = "notification"
	EventMessageAck       EventType = "messageAck"
	EventMessageNack      EventType = "messageNack"
	EventError            EventType = "error"
)

// Event is the envelope for every frame on the live channel.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an envelope of type t.
func NewEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Data: data}, nil
}

// Decode unmarshals the event data into dst.
func (e Event) Decode(dst any) error {
	if len(e.Data) == 0 {
		return errs.InvalidArgument("data", "event data is required")
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return errs.InvalidArgument("data", "malformed event data")
	}
	return nil
}

type AnnouncePayload struct {
	UserID string `json:"userId"`
}

type SendPayload struct {
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	ClientTempID   string `json:"clientTempId,omitempty"`
}

type PresenceSnapshot struct {
	UserIDs []string `json:"userIds"`
}

type Notification struct {
	SenderDisplayName string `json:"senderDisplayName"`
	Message           string `json:"message"`
}

type MessageAck struct {
	ClientTempID string  `json:"clientTempId,omitempty"`
	Message      Message `json:"message"`
}

type MessageNack struct {
	ClientTempID string      `json:"clientTempId,omitempty"`
	Error        *errs.Error `json:"error"`
}

type ErrorPayload struct {
	Error *errs.Error `json:"error"`
}
