package messaging

import (
	"context"
	"errors"
	"strings"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ListConversations returns the caller's inbox or archive. Conversations
// the caller permanently deleted never appear.
func (s *Service) ListConversations(ctx context.Context, userID string, view models.View) ([]models.ConversationView, error) {
	items, err := s.conversations.ListForUser(ctx, userID, view)
	if err != nil {
		return nil, s.persistence(ctx, "failed to load conversations", err)
	}
	return items, nil
}

// OpenThread returns the conversation with otherUserID and its messages,
// creating the conversation on first access.
func (s *Service) OpenThread(ctx context.Context, userID string, otherUserID string) (models.Thread, error) {
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		return models.Thread{}, invalid("otherUserId", "other user id is required")
	}
	if otherUserID == userID {
		return models.Thread{}, invalid("otherUserId", "cannot open a conversation with yourself")
	}

	conv, err := s.conversations.GetOrCreateForPair(ctx, userID, otherUserID)
	if err != nil {
		return models.Thread{}, s.persistence(ctx, "failed to open conversation", err)
	}

	msgs, err := s.messages.ListForConversation(ctx, conv.ID)
	if err != nil {
		return models.Thread{}, s.persistence(ctx, "failed to load messages", err)
	}
	return models.Thread{Conversation: conv, Messages: msgs}, nil
}

// Archive hides the conversation from the caller's inbox.
func (s *Service) Archive(ctx context.Context, conversationID string, userID string) (models.Visibility, error) {
	return s.transition(ctx, conversationID, userID, "archive", models.Visibility.Archive)
}

// Restore moves an archived conversation back to the inbox.
func (s *Service) Restore(ctx context.Context, conversationID string, userID string) (models.Visibility, error) {
	return s.transition(ctx, conversationID, userID, "restore", models.Visibility.Restore)
}

// PermanentlyDelete removes the conversation from every view of the
// caller until new activity resurfaces it. Messages are kept.
func (s *Service) PermanentlyDelete(ctx context.Context, conversationID string, userID string) (models.Visibility, error) {
	return s.transition(ctx, conversationID, userID, "permanent_delete", models.Visibility.Delete)
}

func (s *Service) transition(ctx context.Context, conversationID, userID, action string, fn repositories.Transition) (models.Visibility, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return "", err
	}

	next, err := s.conversations.ApplyTransition(ctx, conversationID, userID, fn)
	if errors.Is(err, repositories.ErrNotParticipant) {
		return "", forbidden()
	}
	if err != nil {
		return "", s.persistence(ctx, "failed to update conversation", err)
	}

	s.logger.InfoContext(ctx, "conversation visibility changed",
		"conversation_id", conversationID, "user_id", userID, "action", action, "visibility", next)
	s.audit.Emit(ctx, telemetry.AuditRecord{
		Action:         "conversation." + action,
		Text:           "conversation " + action + " " + conversationID,
		UserID:         userID,
		ConversationID: conversationID,
	})
	return next, nil
}
