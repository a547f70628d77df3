package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sitevitals/vitalscan/internal/vitals"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	defer q.Close()

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), vitals.QueueItem{ScanID: id, Attempt: 1}))

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, item.ScanID)
	require.Equal(t, 1, item.Attempt)
}

func TestDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), vitals.QueueItem{ScanID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, vitals.QueueItem{ScanID: uuid.New()})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, vitals.ErrQueueClosed)
}
