// Package queue publishes booking lifecycle messages to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/ticket-reservation/internal/domain"
)

const (
	QueueBookingCreated   = "booking.created"
	QueueBookingCancelled = "booking.cancelled"
)

// BookingMessage is the body of every booking message.
type BookingMessage struct {
	Type        string    `json:"type"`
	BookingID   int64     `json:"booking_id"`
	Reference   string    `json:"booking_reference"`
	EventID     int64     `json:"event_id"`
	EventName   string    `json:"event_name,omitempty"`
	UserName    string    `json:"user_name"`
	TicketCount int       `json:"ticket_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func newBookingMessage(typ string, b domain.Booking, at time.Time) BookingMessage {
	return BookingMessage{
		Type:        typ,
		BookingID:   b.ID,
		Reference:   b.Reference,
		EventID:     b.EventID,
		EventName:   b.EventName,
		UserName:    b.UserName,
		TicketCount: b.TicketCount,
		OccurredAt:  at.UTC(),
	}
}

// Publisher keeps one connection and channel open. Publishes are
// serialized on the channel.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials url and declares the durable booking queues.
func NewPublisher(url string) (*Publisher, error) {
	const op = "queue.NewPublisher"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: channel: %w", op, err)
	}

	for _, q := range []string{QueueBookingCreated, QueueBookingCancelled} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("%s: declare %s: %w", op, q, err)
		}
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) PublishBookingCreated(ctx context.Context, b domain.Booking) error {
	return p.publish(ctx, QueueBookingCreated, newBookingMessage(QueueBookingCreated, b, time.Now()))
}

func (p *Publisher) PublishBookingCancelled(ctx context.Context, b domain.Booking) error {
	return p.publish(ctx, QueueBookingCancelled, newBookingMessage(QueueBookingCancelled, b, time.Now()))
}

func (p *Publisher) publish(ctx context.Context, queue string, msg BookingMessage) error {
	const op = "queue.Publisher.publish"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, queue, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.ch.Close()
	return p.conn.Close()
}
