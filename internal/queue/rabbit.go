package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"medicare-scheduler/internal/config"
)

// RabbitMQ publishes email jobs to a durable direct exchange.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.RabbitMQConfig
}

// Dial connects and declares the exchange and email queue.
func Dial(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	r := &RabbitMQ{conn: conn, channel: channel, cfg: cfg}
	if err := r.setup(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) setup() error {
	if err := r.channel.ExchangeDeclare(
		r.cfg.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", r.cfg.Exchange, err)
	}
	if _, err := r.channel.QueueDeclare(r.cfg.EmailQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", r.cfg.EmailQueue, err)
	}
	if err := r.channel.QueueBind(r.cfg.EmailQueue, r.cfg.EmailQueue, r.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", r.cfg.EmailQueue, err)
	}
	return nil
}

// Publish sends message as persistent JSON with routingKey.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.channel.PublishWithContext(
		ctx,
		r.cfg.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// EmailRoutingKey is the routing key bound to the email queue.
func (r *RabbitMQ) EmailRoutingKey() string {
	return r.cfg.EmailQueue
}

// IsConnected reports whether the broker connection is open.
func (r *RabbitMQ) IsConnected() bool {
	return r != nil && r.conn != nil && !r.conn.IsClosed()
}

// Close releases the channel and connection.
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
