package telemetry

import (
	"context"
	"log/slog"
	"time"

	"messaging-service/internal/observability"
)

const auditSchemaVersion = 1

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditRecord is one user-visible state change.
type AuditRecord struct {
	// Level defaults to INFO.
	Level          string
	Action         string
	Text           string
	UserID         string
	ConversationID string
	// RequestID defaults to the request id on the context.
	RequestID string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    time.Time    `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Action         string `json:"action"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AuditEmitter publishes audit records for the audit log consumer.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit is safe on a nil emitter. Publish failures are logged and dropped.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}
	if rec.RequestID == "" {
		rec.RequestID = observability.RequestIDFromContext(ctx)
	}
	var userID *string
	if rec.UserID != "" {
		userID = &rec.UserID
	}

	envelope := AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC(),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:          rec.Level,
			Action:         rec.Action,
			Text:           rec.Text,
			ConversationID: rec.ConversationID,
		},
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.ErrorContext(ctx, "audit publish failed", "action", rec.Action, "request_id", rec.RequestID, "error", err)
	}
}
