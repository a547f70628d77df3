package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitevitals/vitalscan/internal/metrics"
	"github.com/sitevitals/vitalscan/internal/vitals"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) OnEvent(event Event, _ vitals.QueueItem) {
	r.events = append(r.events, event)
}

func TestLogObserverDoesNotPanic(t *testing.T) {
	t.Parallel()

	o := NewLogObserver(zap.NewNop())
	o.OnEvent(EventActive, vitals.QueueItem{ScanID: uuid.New(), Attempt: 1})
	o.OnEvent(EventCompleted, vitals.QueueItem{ScanID: uuid.New()})
	o.OnEvent(EventFailed, vitals.QueueItem{ScanID: uuid.New()})
}

func TestMetricsObserverCountsEvents(t *testing.T) {
	metrics.Init()

	o := MetricsObserver{}
	o.OnEvent(EventActive, vitals.QueueItem{ScanID: uuid.New()})
	o.OnEvent(EventCompleted, vitals.QueueItem{ScanID: uuid.New()})
}

func TestMultiObserverFansOut(t *testing.T) {
	t.Parallel()

	first := &recordingObserver{}
	second := &recordingObserver{}
	multi := MultiObserver{first, second}

	multi.OnEvent(EventActive, vitals.QueueItem{ScanID: uuid.New()})
	multi.OnEvent(EventFailed, vitals.QueueItem{ScanID: uuid.New()})

	require.Equal(t, []Event{EventActive, EventFailed}, first.events)
	require.Equal(t, []Event{EventActive, EventFailed}, second.events)
}
