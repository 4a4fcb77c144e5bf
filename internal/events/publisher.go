// Package events publishes seat transition events to RabbitMQ so downstream
// consumers (dashboards, alerting) can react without polling the database.
// Publishing is best-effort: a broker outage never blocks seat recording.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

// Transition is the wire format for one occupied/freed event.
type Transition struct {
	SeatNumber      int       `json:"seat_number"`
	EventType       string    `json:"event_type"`
	PersonID        *int      `json:"person_id,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher emits seat transitions.
type Publisher interface {
	PublishTransition(ctx context.Context, event Transition) error
	Close() error
}

// AMQPPublisher implements Publisher over a RabbitMQ connection opened once
// at startup. Messages are persistent and go to a durable queue via the
// default exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPPublisher dials the broker and declares the queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, queue: queue}, nil
}

func (p *AMQPPublisher) PublishTransition(ctx context.Context, event Transition) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		slog.Warn("closing rabbitmq channel", "error", err)
	}
	return p.conn.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransition(context.Context, Transition) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

// FromSeatEvent converts a stored seat event to its wire format.
func FromSeatEvent(e models.SeatEvent) Transition {
	return Transition{
		SeatNumber:      e.SeatNumber,
		EventType:       e.EventType,
		PersonID:        e.PersonID,
		DurationSeconds: e.DurationSeconds,
		Timestamp:       e.Timestamp,
	}
}

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NoopPublisher{}
)
