package observability

import (
	"context"
	"sync"
	"time"
)

// Publisher is the sink for operational events. The rabbitmq package
// provides the AMQP implementation.
type Publisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defaultPublisher = publisher
	publisherMu.Unlock()
}

// PublishEvent wraps payload in an Envelope and sends it through the
// publisher set with SetPublisher. Without one it does nothing.
func PublishEvent(ctx context.Context, routingKey, eventType, eventName string, payload any, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.PublishWithHeaders(ctx, routingKey, Envelope{
		EventType:  eventType,
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}, headers)
	if err != nil {
		amqpPublishErrors.Inc()
	}
	return err
}
