package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

const rabbitDialAttempts = 10

// channelPublisher is the part of amqp091.Channel the publisher needs.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPPublisher posts every change to a topic exchange with the event type
// as routing key, so consumers can bind to e.g. "ride.*".
type AMQPPublisher struct {
	conn     *amqp091.Connection
	ch       channelPublisher
	exchange string
}

// NewAMQPPublisher dials RabbitMQ, retrying while the broker starts up, and
// declares the exchange.
func NewAMQPPublisher(ctx context.Context, url, exchange string, log logrus.FieldLogger) (*AMQPPublisher, error) {
	var conn *amqp091.Connection
	var err error
	for i := 0; i < rabbitDialAttempts; i++ {
		conn, err = amqp091.Dial(url)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("RabbitMQ not ready, retrying... (%d/%d)", i+1, rabbitDialAttempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event models.Event) error {
	if !event.Primary() {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		string(event.Type),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
