package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lightning-sats-bot/internal/domain"
	"lightning-sats-bot/internal/domain/model"
	"lightning-sats-bot/internal/infra/logging"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Envelope is the body mirrored to the broker.
type Envelope struct {
	ID         string              `json:"id"`
	TraceID    string              `json:"traceId,omitempty"`
	OccurredAt time.Time           `json:"occurredAt"`
	UserID     string              `json:"userId"`
	Event      model.OutboundEvent `json:"event"`
}

type publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	Close() error
}

// AMQPSink mirrors domain events to a topic exchange, one routing key per event type.
type AMQPSink struct {
	pub      publisher
	exchange string
	now      func() time.Time
	log      *zerolog.Logger
}

// DialAMQP connects, declares a durable topic exchange and returns a sink publishing to it.
func DialAMQP(url, exchange string, logger *zerolog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return newAMQPSink(&amqpConn{conn: conn}, exchange, logger), nil
}

func newAMQPSink(pub publisher, exchange string, logger *zerolog.Logger) *AMQPSink {
	l := logger.With().Str("component", "AMQPSink").Str("exchange", exchange).Logger()
	return &AMQPSink{pub: pub, exchange: exchange, now: time.Now, log: &l}
}

func (s *AMQPSink) Deliver(ctx context.Context, ev model.OutboundEvent) error {
	env := Envelope{
		ID:         uuid.NewString(),
		TraceID:    logging.TraceID(ctx),
		OccurredAt: s.now().UTC(),
		UserID:     ev.UserID,
		Event:      ev,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	corr := env.TraceID
	if corr == "" {
		corr = env.ID
	}
	err = s.pub.Publish(ctx, s.exchange, string(ev.Type), amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.ID,
		CorrelationId: corr,
		Timestamp:     env.OccurredAt,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("%w: amqp publish: %v", domain.ErrTransport, err)
	}
	s.log.Debug().Str("key", string(ev.Type)).Str("message_id", env.ID).Msg("published")
	return nil
}

func (s *AMQPSink) Close() error { return s.pub.Close() }

// amqpConn opens a short-lived confirm-mode channel per publish.
type amqpConn struct {
	conn *amqp.Connection
}

func (c *amqpConn) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("broker nacked message %s", msg.MessageId)
	}
	return nil
}

func (c *amqpConn) Close() error { return c.conn.Close() }
