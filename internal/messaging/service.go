package messaging

import (
	"context"
	"errors"
	"log/slog"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// Fanout pushes a freshly stored message to live connections.
type Fanout interface {
	MessageCreated(msg models.Message, originConnID string)
}

type Config struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Profiles      repositories.ProfileRepository
	Fanout        Fanout
	Audit         *telemetry.AuditEmitter
	Logger        *slog.Logger
}

// Service implements the messaging operations shared by the REST surface
// and the live channel.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	fanout        Fanout
	audit         *telemetry.AuditEmitter
	logger        *slog.Logger
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		profiles:      cfg.Profiles,
		fanout:        cfg.Fanout,
		audit:         cfg.Audit,
		logger:        logger,
	}
}

// RememberProfile stores the caller's display identity so later sender
// lookups resolve to it.
func (s *Service) RememberProfile(ctx context.Context, profile models.Profile) error {
	if profile.ID == "" || s.profiles == nil {
		return nil
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return s.persistence(ctx, "failed to store profile", err)
	}
	return nil
}

// persistence logs a store failure and returns the generic error callers see.
func (s *Service) persistence(ctx context.Context, message string, err error) error {
	s.logger.ErrorContext(ctx, message, "error", err)
	return internal(message, err)
}

// conversationFor loads a conversation and checks userID takes part in it.
// Non-participants get permission_denied.
func (s *Service) conversationFor(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	if conversationID == "" {
		return models.Conversation{}, invalid("conversationId", "conversation id is required")
	}
	conv, err := s.conversations.Get(ctx, conversationID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, notFound()
	}
	if err != nil {
		return models.Conversation{}, s.persistence(ctx, "failed to load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, forbidden()
	}
	return conv, nil
}
