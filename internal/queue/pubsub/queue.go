// Package pubsub provides a GCP Pub/Sub backed queue implementation.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Config holds Pub/Sub connection metadata.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue implements vitals.Queue on top of a Pub/Sub topic/subscription pair.
// Jobs survive process restart because they live in the broker until acked.
type Queue struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	sub       *pubsub.Subscription
	items     chan vitals.QueueItem
	logger    *zap.Logger
	recvCtx   context.Context
	recvStop  context.CancelFunc
	recvErrCh chan error
}

// NewQueue creates a Pub/Sub client and verifies the topic exists. The
// receive loop starts immediately and runs until Close.
func NewQueue(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	recvCtx, recvStop := context.WithCancel(context.Background())
	q := &Queue{
		client:    client,
		topic:     topic,
		sub:       client.Subscription(cfg.SubscriptionID),
		items:     make(chan vitals.QueueItem),
		logger:    logger,
		recvCtx:   recvCtx,
		recvStop:  recvStop,
		recvErrCh: make(chan error, 1),
	}
	go q.receive()
	return q, nil
}

// Enqueue publishes the item and blocks until the broker acknowledges it,
// so the caller knows the job is durable before answering the client.
func (q *Queue) Enqueue(ctx context.Context, item vitals.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue pops the next job delivered by the subscription.
func (q *Queue) Dequeue(ctx context.Context) (vitals.QueueItem, error) {
	select {
	case <-ctx.Done():
		return vitals.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.items:
		if !ok {
			return vitals.QueueItem{}, fmt.Errorf("pubsub receive stopped: %w", vitals.ErrQueueClosed)
		}
		return item, nil
	}
}

func (q *Queue) receive() {
	err := q.sub.Receive(q.recvCtx, func(ctx context.Context, msg *pubsub.Message) {
		var item vitals.QueueItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			q.logger.Warn("dropping malformed queue message", zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.items <- item:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && q.recvCtx.Err() == nil {
		q.logger.Error("pubsub receive stopped", zap.Error(err))
	}
	q.recvErrCh <- err
	close(q.items)
}

// Close stops the receive loop and closes the client.
func (q *Queue) Close() error {
	q.recvStop()
	<-q.recvErrCh
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
