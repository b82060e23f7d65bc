package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueue(client, "events_test", nil), mr
}

func TestNewEvent_ReadsType(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	e := NewEvent(json.RawMessage(`{"type":"tab_opened","tab":"auth"}`), now)
	require.Equal(t, "tab_opened", e.Type)
	require.NotEmpty(t, e.ID)
	require.Equal(t, now, e.ReceivedAt)

	e = NewEvent(json.RawMessage(`{"event":"verify_clicked"}`), now)
	require.Equal(t, "verify_clicked", e.Type)

	e = NewEvent(json.RawMessage(`[1,2,3]`), now)
	require.Empty(t, e.Type)
}

func TestQueue_PublishDequeueComplete(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	published := NewEvent(json.RawMessage(`{"type":"a"}`), time.Now())
	require.NoError(t, q.Publish(ctx, published))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Pending: 1}, stats)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, published.ID, got.ID)
	require.JSONEq(t, `{"type":"a"}`, string(got.Payload))

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Processing: 1}, stats)

	require.NoError(t, q.Complete(ctx, got))

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestQueue_FailRequeuesThenParks(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, NewEvent(json.RawMessage(`{}`), time.Now())))

	for i := 1; i <= MaxRetries+1; i++ {
		event, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, event, "attempt %d", i)
		require.NoError(t, q.Fail(ctx, event, errors.New("sink down")))
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Failed: 1}, stats)
}

func TestQueue_UnreadableEntryGoesToFailed(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.Push("events_test", "not json")
	require.NoError(t, err)

	event, err := q.Dequeue(ctx, time.Second)
	require.Error(t, err)
	require.Nil(t, event)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Failed)
}
