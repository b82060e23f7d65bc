package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"payments-playground-api/models"
	"payments-playground-api/utils"
)

// RateLimitConfig is the allowance for one class of endpoints.
type RateLimitConfig struct {
	Name     string
	Requests int
	Window   time.Duration
	Message  string
}

var (
	authLimit = RateLimitConfig{
		Name:     "auth",
		Requests: 30,
		Window:   time.Minute,
		Message:  "Too many token requests. Please wait a minute.",
	}
	defaultLimit = RateLimitConfig{
		Name:     "default",
		Requests: 120,
		Window:   time.Minute,
		Message:  "Rate limit exceeded. Please slow down your requests.",
	}
)

// slidingWindow trims entries older than the window, then admits the request
// if the remaining count is under the limit.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1}
end
return {0, 0}
`)

type RateLimiter struct {
	client redis.Scripter
	logger *slog.Logger
	now    func() time.Time
}

func NewRateLimiter(client redis.Scripter, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{client: client, logger: logger, now: time.Now}
}

// Middleware enforces the per-endpoint limits. Redis failures let the request
// through.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			config := configForEndpoint(r.URL.Path)
			key := rateLimitKey(r, config)

			allowed, remaining, reset, err := rl.check(r.Context(), key, config)
			if err != nil {
				rl.logger.Warn("rate limit check failed", "err", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				rl.logger.Info("rate limit exceeded", "key", key, "path", r.URL.Path)
				retryAfter := int64(reset.Sub(rl.now()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				utils.SendError(w, http.StatusTooManyRequests, models.ErrorResponse{
					Error:  config.Message,
					Status: http.StatusTooManyRequests,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) check(ctx context.Context, key string, config RateLimitConfig) (bool, int, time.Time, error) {
	now := rl.now()
	reset := now.Add(config.Window)

	result, err := slidingWindow.Run(ctx, rl.client, []string{key},
		now.UnixMilli(), config.Window.Milliseconds(), config.Requests, uuid.NewString()).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected redis result format: %v", result)
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, time.Time{}, fmt.Errorf("failed to parse redis result: %v", result)
	}

	return allowed == 1, int(remaining), reset, nil
}

func configForEndpoint(path string) RateLimitConfig {
	if strings.HasPrefix(path, "/api/auth/") {
		return authLimit
	}
	return defaultLimit
}

func rateLimitKey(r *http.Request, config RateLimitConfig) string {
	return fmt.Sprintf("rate_limit:%s:%s", config.Name, clientIP(r))
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
