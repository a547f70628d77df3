// Package queue defines queue lifecycle observation shared by all providers.
package queue

import (
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

// Event identifies a job lifecycle transition.
type Event string

// Lifecycle events emitted by the worker while consuming the queue.
const (
	EventActive    Event = "active"
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
)

// Observer receives job lifecycle events. Observers must be fast and must
// not block the worker loop.
type Observer interface {
	OnEvent(event Event, item vitals.QueueItem)
}

// LogObserver logs lifecycle events.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver builds a LogObserver.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnEvent implements Observer.
func (o *LogObserver) OnEvent(event Event, item vitals.QueueItem) {
	o.logger.Info("queue event",
		zap.String("event", string(event)),
		zap.String("scan_id", item.ScanID.String()),
		zap.Int("attempt", item.Attempt),
	)
}

// MetricsObserver feeds the queue event counter.
type MetricsObserver struct{}

// OnEvent implements Observer.
func (MetricsObserver) OnEvent(event Event, _ vitals.QueueItem) {
	metrics.ObserveQueueEvent(string(event))
}

// NoopObserver discards all events.
type NoopObserver struct{}

// OnEvent implements Observer.
func (NoopObserver) OnEvent(Event, vitals.QueueItem) {}

// MultiObserver fans one event out to several observers.
type MultiObserver []Observer

// OnEvent implements Observer.
func (m MultiObserver) OnEvent(event Event, item vitals.QueueItem) {
	for _, o := range m {
		o.OnEvent(event, item)
	}
}
