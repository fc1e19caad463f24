package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/streadway/amqp"

	"github.com/bete/backend/internal/logging"
	"github.com/bete/backend/internal/metrics"
)

const (
	PropertyCreated = "create"
	PropertyUpdated = "update"
	PropertyDeleted = "delete"
)

// PropertyEvent is the message a downstream search indexer consumes.
type PropertyEvent struct {
	Action     string    `json:"action"`
	PropertyID string    `json:"property_id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher announces property changes. Publishing is best-effort: the
// write that triggered it has already committed.
type EventPublisher interface {
	PublishProperty(ctx context.Context, ev PropertyEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishProperty(context.Context, PropertyEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// AMQPPublisher publishes to a durable RabbitMQ queue through the default exchange.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = "properties_queue"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	logging.Info().Str("queue", queue).Msg("rabbitmq publisher ready")
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) PublishProperty(_ context.Context, ev PropertyEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Action, "error").Inc()
		return fmt.Errorf("publish %s: %w", ev.Action, err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Action, "ok").Inc()
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}
