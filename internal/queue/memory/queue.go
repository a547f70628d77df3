// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Jobs do not survive process restart; the pubsub and rabbit providers
// exist for durable deployments.
type Queue struct {
	ch      chan vitals.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan vitals.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item vitals.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (vitals.QueueItem, error) {
	select {
	case <-ctx.Done():
		return vitals.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return vitals.QueueItem{}, vitals.ErrQueueClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
