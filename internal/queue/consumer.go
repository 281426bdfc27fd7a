package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/logging"
)

// BookingLogFile is the name of the event log inside the queue log dir.
const BookingLogFile = "booking.log"

// Consumer drains the booking event queue into an append-only log.  Each
// message becomes one line; malformed messages are rejected without requeue
// so they cannot spin.
type Consumer struct {
	cfg config.QueueConfig
	log *slog.Logger

	mu  sync.Mutex
	out io.WriteCloser
}

// NewConsumer opens the rotating booking log.  Rotation limits come from the
// process log config; the directory from the queue config.
func NewConsumer(cfg config.QueueConfig, logCfg logging.Config, logger *slog.Logger) (*Consumer, error) {
	logCfg.Dir = cfg.LogDir
	out, err := logging.NewRotatingFile(logCfg, BookingLogFile)
	if err != nil {
		return nil, fmt.Errorf("open booking log: %w", err)
	}
	return newConsumer(cfg, out, logger), nil
}

func newConsumer(cfg config.QueueConfig, out io.WriteCloser, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, out: out, log: logger.With(slog.String("component", "booking-consumer"))}
}

// Run connects, consumes and reconnects with capped backoff until ctx is
// cancelled.  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.Warn("broker_dial_failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume_loop_ended", slog.Any("err", err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set_qos_failed", slog.Any("err", err))
	}
	if _, err := ch.QueueDeclare(c.cfg.Name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming", slog.String("queue", c.cfg.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				c.log.Error("handle_message_failed", slog.String("message_id", d.MessageId), slog.Any("err", err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	ev, err := DecodeBookingEvent(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, ev.Line()); err != nil {
		return fmt.Errorf("write booking log: %w", err)
	}
	return nil
}

// Close releases the booking log.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Close()
}

// sleep waits d or until ctx is done; it reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
