// Package jobs delivers domain events to asynchronous consumers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/stockline/api/internal/services"
)

const (
	eventSchemaVersion    = "1"
	defaultPublishTimeout = 10 * time.Second
)

// PubSubProductEventPublisher sends product events to one topic, ordered per shared item.
type PubSubProductEventPublisher struct {
	topic   *pubsub.Topic
	source  string
	timeout time.Duration
}

type PublisherOption func(*PubSubProductEventPublisher)

// WithEventSource stamps every message with a "source" attribute, typically the environment.
func WithEventSource(source string) PublisherOption {
	return func(p *PubSubProductEventPublisher) { p.source = strings.TrimSpace(source) }
}

func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *PubSubProductEventPublisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func NewPubSubProductEventPublisher(topic *pubsub.Topic, opts ...PublisherOption) (*PubSubProductEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub product publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	p := &PubSubProductEventPublisher{topic: topic, timeout: defaultPublishTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// PublishProductEvent blocks until Pub/Sub acknowledges the message and returns its id.
func (p *PubSubProductEventPublisher) PublishProductEvent(ctx context.Context, event services.ProductEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal product event: %w", err)
	}
	msg := &pubsub.Message{
		Data:        data,
		Attributes:  p.attributes(event),
		OrderingKey: strings.TrimSpace(event.SharedKey),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		// A failed ordered publish pauses its key until resumed.
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish %s for %s: %w", event.Type, event.SharedKey, err)
	}
	return id, nil
}

// attributes carry only routing fields. The actor stays in the payload.
func (p *PubSubProductEventPublisher) attributes(event services.ProductEvent) map[string]string {
	attrs := map[string]string{"schemaVersion": eventSchemaVersion}
	for k, v := range map[string]string{
		"eventType": event.Type,
		"sharedKey": event.SharedKey,
		"productId": event.ProductID,
		"status":    event.Status,
		"source":    p.source,
	} {
		if v = strings.TrimSpace(v); v != "" {
			attrs[k] = v
		}
	}
	return attrs
}
