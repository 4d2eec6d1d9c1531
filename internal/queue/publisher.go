package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultDialTimeout = 30 * time.Second

// Publisher sends booking events to RabbitMQ. It dials per message; the
// booking path publishes at most once per commit so a pooled connection
// buys nothing.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.With(zap.String("component", "queue_publisher"))}
}

// PublishBookingConfirmed publishes ev as a persistent message on the
// booking.confirmed queue. Errors are logged and returned so the caller can
// ignore them.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	conn, err := dial(ctx, p.url)
	if err != nil {
		p.log.Warn("rabbitmq dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch); err != nil {
		p.log.Warn("rabbitmq queue declare failed", zap.Error(err))
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.BookingID,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BookingConfirmedQueue, false, false, msg); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("booking_id", ev.BookingID), zap.Error(err))
		return err
	}
	return nil
}

// dial connects within ctx's deadline, which also bounds the AMQP
// handshake. Without a deadline the driver's default applies.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// declare makes sure the durable queue exists. Declaring is idempotent.
func declare(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil)
}
