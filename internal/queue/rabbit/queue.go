// Package rabbit provides a RabbitMQ backed queue implementation.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Config holds RabbitMQ connection metadata.
type Config struct {
	URL       string
	QueueName string
}

// Queue implements vitals.Queue on a durable RabbitMQ queue. Messages are
// published persistent so jobs survive broker restarts.
type Queue struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	deliveries <-chan amqp091.Delivery
	cfg        Config
	logger     *zap.Logger
}

// NewQueue dials the broker, declares the durable queue, and starts a
// consumer.
func NewQueue(cfg Config, logger *zap.Logger) (*Queue, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", cfg.QueueName, err)
	}

	deliveries, err := channel.Consume(
		cfg.QueueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("consume queue %q: %w", cfg.QueueName, err)
	}

	return &Queue{
		conn:       conn,
		channel:    channel,
		deliveries: deliveries,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Enqueue publishes the item as a persistent JSON message.
func (q *Queue) Enqueue(ctx context.Context, item vitals.QueueItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	err = q.channel.PublishWithContext(
		ctx,
		"",              // default exchange
		q.cfg.QueueName, // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue pops the next delivery and acks it. Malformed payloads are acked
// and skipped so they cannot wedge the queue.
func (q *Queue) Dequeue(ctx context.Context) (vitals.QueueItem, error) {
	for {
		select {
		case <-ctx.Done():
			return vitals.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case delivery, ok := <-q.deliveries:
			if !ok {
				return vitals.QueueItem{}, fmt.Errorf("rabbitmq consumer closed: %w", vitals.ErrQueueClosed)
			}
			var item vitals.QueueItem
			if err := json.Unmarshal(delivery.Body, &item); err != nil {
				q.logger.Warn("dropping malformed queue message", zap.Error(err))
				_ = delivery.Ack(false)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				return vitals.QueueItem{}, fmt.Errorf("ack delivery: %w", err)
			}
			return item, nil
		}
	}
}

// Close shuts down the channel and connection.
func (q *Queue) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
