package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"messaging-service/internal/id"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// Publisher sends audit records and domain events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher connects to the broker and declares exchange. When the url
// is empty or the broker is unreachable it returns a publisher that only
// logs, so the service keeps running without RabbitMQ.
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url", logger)
	}
	conn, ch, err := dial(amqpURL, exchange)
	if err != nil {
		return newNoop(err.Error(), logger)
	}
	logger.Info("rabbitmq connected", "exchange", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
}

func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange, never auto-deleted
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishWithHeaders(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id.Generate(),
		Timestamp:    time.Now(),
		Headers:      table,
		Body:         body,
	}
	if requestID := headers["x-request-id"]; requestID != "" {
		msg.CorrelationId = requestID
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.logger.Error("rabbitmq publish failed", "routing_key", routingKey, "error", err)
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	logger *slog.Logger
}

func newNoop(reason string, logger *slog.Logger) noopPublisher {
	logger.Warn("rabbitmq disabled, using noop", "reason", reason)
	return noopPublisher{reason: reason, logger: logger}
}

func (n noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return n.PublishWithHeaders(ctx, routingKey, event, nil)
}

func (n noopPublisher) PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	attrs := append([]any{"routing_key", routingKey, "request_id", headers["x-request-id"]}, describe(event)...)
	n.logger.DebugContext(ctx, "rabbitmq noop publish", attrs...)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

func describe(event any) []any {
	switch e := event.(type) {
	case observability.Envelope:
		return []any{"event_type", e.EventType, "event_name", e.EventName}
	case telemetry.AuditEnvelope:
		return []any{"event_type", e.EventType, "action", e.Payload.Action}
	case *telemetry.AuditEnvelope:
		return describe(*e)
	default:
		return []any{"event_type", fmt.Sprintf("%T", event)}
	}
}

// Status reports whether p talks to a broker ("amqp") or only logs
// ("noop"), and why it fell back.
func Status(p Publisher) (mode, reason string) {
	switch pub := p.(type) {
	case *amqpPublisher:
		return "amqp", ""
	case noopPublisher:
		return "noop", pub.reason
	default:
		return "unknown", ""
	}
}
