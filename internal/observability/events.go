package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	headerRequestID = "x-request-id"
	headerTraceID   = "trace_id"
)

// Envelope is the body of every operational event sent to the broker.
type Envelope struct {
	EventType  string    `json:"event_type"`
	EventName  string    `json:"event_name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// ConnectionEvent describes a live connection opening, closing or failing.
type ConnectionEvent struct {
	ConnID     string `json:"conn_id"`
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// MessageEvent describes a stored message.
type MessageEvent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Channel        string `json:"channel"`
}

// Correlation builds the broker headers that tie an event to its request
// and trace. Empty ids are looked up on ctx.
func Correlation(ctx context.Context, requestID, traceID string) map[string]string {
	if requestID == "" {
		requestID = RequestIDFromContext(ctx)
	}
	if traceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}

	headers := make(map[string]string, 2)
	if requestID != "" {
		headers[headerRequestID] = requestID
	}
	if traceID != "" {
		headers[headerTraceID] = traceID
	}
	return headers
}
