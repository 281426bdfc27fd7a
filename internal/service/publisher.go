// Package service holds the workflows that span several repositories and
// publishes booking events to the message broker.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/queue"
)

// EventPublisher delivers booking events.  Callers log failures and carry
// on; an event is never worth failing a request over.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// NopPublisher drops every event.  It is used when the queue is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.BookingEvent) error { return nil }

// AMQPPublisher sends events to a durable RabbitMQ queue as persistent JSON
// messages.  Each publish dials its own connection, which is plenty for
// booking-desk traffic.
type AMQPPublisher struct {
	cfg config.QueueConfig
}

func NewAMQPPublisher(cfg config.QueueConfig) *AMQPPublisher { return &AMQPPublisher{cfg: cfg} }

// NewPublisher picks the AMQP publisher when the queue is enabled.
func NewPublisher(cfg config.QueueConfig) EventPublisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return NewAMQPPublisher(cfg)
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
	body, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.cfg.Name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.cfg.Name, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func publish(ctx context.Context, events EventPublisher, logger *slog.Logger, ev queue.BookingEvent) {
	if err := events.Publish(ctx, ev); err != nil {
		logger.WarnContext(ctx, "booking_event_publish_failed",
			slog.String("type", string(ev.Type)),
			slog.Uint64("booking_id", ev.BookingID),
			slog.Any("err", err))
	}
}
