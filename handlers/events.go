package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"payments-playground-api/queue"
)

const maxEventBytes = 64 << 10

type EventHandler struct {
	sink   queue.Sink
	logger *slog.Logger
	now    func() time.Time
}

func NewEventHandler(sink queue.Sink, logger *slog.Logger) *EventHandler {
	return &EventHandler{sink: sink, logger: logger, now: time.Now}
}

// Publish accepts a browser analytics event. It always answers 200 "OK" so
// analytics problems never surface in the UI.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	defer writeOK(w)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		h.logger.Warn("failed to read analytics event", "err", err)
		return
	}
	if !json.Valid(data) {
		h.logger.Warn("failed to process analytics event", "body", string(data))
		return
	}

	event := queue.NewEvent(json.RawMessage(data), h.now())
	if err := h.sink.Publish(r.Context(), event); err != nil {
		h.logger.Error("failed to publish analytics event", "event_id", event.ID, "err", err)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
