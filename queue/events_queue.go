package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	DefaultQueueName = "playground_events"
	MaxRetries       = 3
)

// Event is a browser analytics event accepted by /api/event/publish.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`

	// raw is the exact list entry, needed to remove it from the processing list.
	raw string
}

// NewEvent wraps a JSON payload. The type is read from a top-level "type" or
// "event" field when present.
func NewEvent(payload json.RawMessage, now time.Time) *Event {
	var head struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	}
	_ = json.Unmarshal(payload, &head)

	eventType := head.Type
	if eventType == "" {
		eventType = head.Event
	}

	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Payload:    payload,
		ReceivedAt: now.UTC(),
	}
}

// Sink accepts published events.
type Sink interface {
	Publish(ctx context.Context, event *Event) error
}

// LogSink writes events straight to the log. It is used when Redis is not
// configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event *Event) error {
	s.logger.Info("event received",
		"event_id", event.ID,
		"type", event.Type,
		"payload", string(event.Payload),
	)
	return nil
}

// Queue is a Redis list of events with processing and failed side lists.
type Queue struct {
	client     redis.Cmdable
	queueName  string
	processing string
	failed     string
	logger     *slog.Logger
}

func NewQueue(client redis.Cmdable, queueName string, logger *slog.Logger) *Queue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + ":processing",
		failed:     queueName + ":failed",
		logger:     logger,
	}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (q *Queue) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := q.client.RPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to queue: %w", err)
	}

	q.logger.Debug("event enqueued", "event_id", event.ID, "type", event.Type)
	return nil
}

// Dequeue blocks up to timeout for the next event and parks it on the
// processing list. A nil event with a nil error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Event, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result format")
	}

	var event Event
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		// unreadable entries go straight to the failed list
		if pushErr := q.client.RPush(ctx, q.failed, result[1]).Err(); pushErr != nil {
			q.logger.Warn("dropping unreadable event", "err", pushErr)
		}
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event.raw = result[1]

	if err := q.client.RPush(ctx, q.processing, event.raw).Err(); err != nil {
		q.logger.Warn("failed to move event to processing list", "event_id", event.ID, "err", err)
	}

	return &event, nil
}

func (q *Queue) Complete(ctx context.Context, event *Event) error {
	if err := q.client.LRem(ctx, q.processing, 1, event.raw).Err(); err != nil {
		return fmt.Errorf("failed to remove event from processing list: %w", err)
	}
	return nil
}

// Fail requeues the event until it has been retried MaxRetries times, then
// moves it to the failed list.
func (q *Queue) Fail(ctx context.Context, event *Event, cause error) error {
	if err := q.client.LRem(ctx, q.processing, 1, event.raw).Err(); err != nil {
		q.logger.Warn("failed to remove event from processing list", "event_id", event.ID, "err", err)
	}

	event.RetryCount++
	event.LastError = cause.Error()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	target := q.queueName
	if event.RetryCount > MaxRetries {
		target = q.failed
	}
	if err := q.client.RPush(ctx, target, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to %s: %w", target, err)
	}

	q.logger.Info("event failed",
		"event_id", event.ID,
		"retry", event.RetryCount,
		"requeued", target == q.queueName,
		"err", cause,
	)
	return nil
}

// Stats are the list lengths reported by the health endpoint.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.queueName)
	processing := pipe.LLen(ctx, q.processing)
	failed := pipe.LLen(ctx, q.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Failed:     failed.Val(),
	}, nil
}
