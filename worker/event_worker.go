package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"payments-playground-api/queue"
)

// Source is the queue side the worker drains.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Event, error)
	Complete(ctx context.Context, event *queue.Event) error
	Fail(ctx context.Context, event *queue.Event, cause error) error
}

// Handler processes one event. A returned error sends the event back through
// Source.Fail.
type Handler func(ctx context.Context, event *queue.Event) error

// Worker handles background event processing.
type Worker struct {
	source      Source
	handle      Handler
	logger      *slog.Logger
	pollTimeout time.Duration
	backoff     time.Duration

	mu        sync.Mutex
	shutdown  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

func NewWorker(source Source, handle Handler, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		source:      source,
		handle:      handle,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     time.Second,
	}
}

// LogHandler records each event in the structured log.
func LogHandler(logger *slog.Logger) Handler {
	return func(_ context.Context, event *queue.Event) error {
		logger.Info("event processed",
			"event_id", event.ID,
			"type", event.Type,
			"received_at", event.ReceivedAt,
			"retry", event.RetryCount,
			"payload", string(event.Payload),
		)
		return nil
	}
}

// Start launches concurrency goroutines. Calling Start on a running worker
// does nothing.
func (w *Worker) Start(concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return
	}
	if concurrency < 1 {
		concurrency = 1
	}

	w.shutdown = make(chan struct{})
	w.isRunning = true

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processEvents(i)
	}

	w.logger.Info("event worker started", "goroutines", concurrency)
}

// Stop signals the goroutines and waits for in-flight events to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	close(w.shutdown)
	w.isRunning = false
	w.mu.Unlock()

	w.logger.Info("stopping event worker")
	w.wg.Wait()
}

func (w *Worker) processEvents(workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker", workerID)
	logger.Debug("worker starting")

	for {
		select {
		case <-w.shutdown:
			logger.Debug("worker shutting down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.pollTimeout+5*time.Second)
		event, err := w.source.Dequeue(ctx, w.pollTimeout)
		cancel()

		if err != nil {
			logger.Warn("error dequeuing event", "err", err)
			w.sleep(w.backoff)
			continue
		}
		if event == nil {
			continue
		}

		w.process(logger, event)
	}
}

func (w *Worker) process(logger *slog.Logger, event *queue.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.handle(ctx, event); err != nil {
		logger.Warn("error processing event", "event_id", event.ID, "err", err)
		if failErr := w.source.Fail(ctx, event, err); failErr != nil {
			logger.Error("error marking event as failed", "event_id", event.ID, "err", failErr)
		}
		return
	}

	if err := w.source.Complete(ctx, event); err != nil {
		logger.Error("error marking event as complete", "event_id", event.ID, "err", err)
	}
}

// sleep waits for d or until shutdown.
func (w *Worker) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.shutdown:
	}
}
