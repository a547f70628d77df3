// Package worker implements the scan consumption loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/queue"
	"github.com/sitevitals/vitalscan/internal/scanner"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Worker consumes queue items and drives the scan pipeline.
type Worker struct {
	queue    vitals.Queue
	scanner  *scanner.Service
	observer queue.Observer
	logger   *zap.Logger
}

// New constructs a Worker.
func New(q vitals.Queue, svc *scanner.Service, observer queue.Observer, logger *zap.Logger) *Worker {
	if observer == nil {
		observer = queue.NoopObserver{}
	}
	return &Worker{
		queue:    q,
		scanner:  svc,
		observer: observer,
		logger:   logger,
	}
}

// Dequeue retry backoff bounds. Transient broker errors should not turn
// the loop into a busy spin.
const (
	dequeueBackoffMin = 100 * time.Millisecond
	dequeueBackoffMax = 5 * time.Second
)

// Run blocks, consuming queue items until the context finishes or the
// queue reports it is closed for good.
func (w *Worker) Run(ctx context.Context) {
	backoff := dequeueBackoffMin
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, vitals.ErrQueueClosed) {
				w.logger.Warn("queue closed, stopping worker", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed",
				zap.Error(err),
				zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > dequeueBackoffMax {
				backoff = dequeueBackoffMax
			}
			continue
		}
		backoff = dequeueBackoffMin
		w.logger.Debug("dequeued scan", zap.String("scan_id", item.ScanID.String()))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item vitals.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.observer.OnEvent(queue.EventActive, item)
	if err := w.scanner.ProcessScan(ctx, item.ScanID); err != nil {
		w.logger.Error("scan processing failed",
			zap.String("scan_id", item.ScanID.String()),
			zap.Int("attempt", item.Attempt),
			zap.Error(err))
		w.observer.OnEvent(queue.EventFailed, item)
		return
	}
	w.observer.OnEvent(queue.EventCompleted, item)
}
