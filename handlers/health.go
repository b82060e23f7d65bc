package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-redis/redis/v8"

	"payments-playground-api/models"
	"payments-playground-api/queue"
	"payments-playground-api/utils"
)

const (
	RedisDisabled  = "disabled"
	RedisConnected = "connected"
	RedisError     = "error"
)

type HealthHandler struct {
	startTime  time.Time
	redis      redis.Cmdable
	events     *queue.Queue
	apiBaseURL string
}

// NewHealthHandler builds the health check. client and events may be nil when
// Redis is not configured.
func NewHealthHandler(client redis.Cmdable, events *queue.Queue, apiBaseURL string) *HealthHandler {
	return &HealthHandler{
		startTime:  time.Now(),
		redis:      client,
		events:     events,
		apiBaseURL: apiBaseURL,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := models.HealthResponse{
		Status:    "ok",
		Time:      time.Now().Format(time.RFC3339),
		Uptime:    fmt.Sprintf("%v", time.Since(h.startTime).Round(time.Second)),
		GoVersion: runtime.Version(),
		Redis:     RedisDisabled,
		API:       h.apiBaseURL,
	}

	if h.redis != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer redisCancel()

		health.Redis = RedisConnected
		if err := h.redis.Ping(redisCtx).Err(); err != nil {
			health.Status = "degraded"
			health.Redis = RedisError
		} else if h.events != nil {
			if stats, err := h.events.Stats(redisCtx); err == nil {
				health.Events = &stats
			}
		}
	}

	utils.SendJSON(w, http.StatusOK, health)
}
