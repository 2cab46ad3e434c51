package messaging

import (
	"context"
	"strings"
	"unicode/utf8"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const messageRoutingKey = "messages.created"

// SendInput is a request to store and deliver one message.
type SendInput struct {
	SenderID       string
	ReceiverID     string
	ConversationID string
	Body           string
	// Channel labels metrics: "ws" or "rest".
	Channel string
	// OriginConnID is the live connection the message was sent from, if any.
	// It always gets the sender's copy.
	OriginConnID string
}

func (in *SendInput) validate() error {
	in.Body = strings.TrimSpace(in.Body)
	v := errs.NewValidator()
	v.Check(in.SenderID != "", "senderId", "sender id is required")
	v.Check(in.ReceiverID != "", "receiverId", "receiver id is required")
	v.Check(in.ConversationID != "", "conversationId", "conversation id is required")
	v.Check(in.Body != "", "message", "message is required")
	v.Check(utf8.RuneCountInString(in.Body) <= models.MaxMessageRunes, "message", "message is too long")
	v.Check(in.SenderID == "" || in.SenderID != in.ReceiverID, "receiverId", "cannot message yourself")
	return v.AsError()
}

// Send persists a message, records the activity on its conversation and
// fans it out. The returned message has its sender resolved.
func (s *Service) Send(ctx context.Context, in SendInput) (models.Message, error) {
	if err := in.validate(); err != nil {
		observability.IncMessageFailed(in.Channel, "invalid")
		return models.Message{}, err
	}

	conv, err := s.conversationFor(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		observability.IncMessageFailed(in.Channel, string(errs.KindOf(err)))
		return models.Message{}, err
	}
	if !conv.HasParticipant(in.ReceiverID) {
		observability.IncMessageFailed(in.Channel, "invalid")
		return models.Message{}, invalid("receiverId", "receiver is not a participant of this conversation")
	}

	created, err := s.messages.Create(ctx, conv.ID, in.SenderID, in.ReceiverID, in.Body)
	if err != nil {
		observability.IncMessageFailed(in.Channel, "persistence")
		return models.Message{}, s.persistence(ctx, "failed to store message", err)
	}

	// the message exists from here on; a failed touch only costs the
	// preview and resurfacing, unread counts come from messages
	if err := s.conversations.Touch(ctx, conv.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to touch conversation", "conversation_id", conv.ID, "message_id", created.ID, "error", err)
	}

	msg, err := s.messages.Get(ctx, created.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve message sender", "message_id", created.ID, "error", err)
		msg = created
	}

	observability.IncMessageSent(in.Channel)
	s.logger.InfoContext(ctx, "message stored",
		"message_id", msg.ID, "conversation_id", msg.ConversationID, "sender_id", msg.SenderID, "channel", in.Channel)
	_ = observability.PublishEvent(ctx, messageRoutingKey, "message_events", "message_created", observability.MessageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Channel:        in.Channel,
	}, observability.Correlation(ctx, "", ""))

	if s.fanout != nil {
		s.fanout.MessageCreated(msg, in.OriginConnID)
	}
	return msg, nil
}

// MarkRead marks every message addressed to userID in the conversation as
// read and returns how many changed.
func (s *Service) MarkRead(ctx context.Context, conversationID string, userID string) (int64, error) {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if v, _ := conv.VisibilityFor(userID); v == models.VisibilityDeleted {
		return 0, notFound()
	}
	n, err := s.messages.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return 0, s.persistence(ctx, "failed to mark messages read", err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, s.persistence(ctx, "failed to count unread messages", err)
	}
	return n, nil
}

// UnreadCountForConversation answers not_found for conversations the
// caller cannot see, so their existence does not leak.
func (s *Service) UnreadCountForConversation(ctx context.Context, conversationID string, userID string) (int, error) {
	_, err := s.conversationFor(ctx, conversationID, userID)
	if errs.Is(err, errs.KindPermissionDenied) {
		return 0, notFound()
	}
	if err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnreadForConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, s.persistence(ctx, "failed to count unread messages", err)
	}
	return n, nil
}
