package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"payments-playground-api/config"
	"payments-playground-api/handlers"
	"payments-playground-api/logging"
	"payments-playground-api/middleware"
	"payments-playground-api/queue"
	"payments-playground-api/services/auth"
	"payments-playground-api/services/btai"
	"payments-playground-api/worker"
)

var servePort string

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringVar(&servePort, "port", "", "listen port (overrides SERVER_PORT)")
	return fs
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Examples:
  payments-playground-api serve
  payments-playground-api serve --port 9090`,
		RunE: runServe,
	}
	cmd.Flags().AddFlagSet(serveFlags())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	client := btai.NewClient(cfg.API.BaseURL, cfg.JWT.ProjectID,
		btai.WithTimeout(cfg.API.Timeout),
		btai.WithUserAgent(cfg.API.UserAgent),
		btai.WithLogger(logger),
	)

	resolver := middleware.NewTokenResolver(newSessionStore(cfg.Session, logger), jwtService, cfg.Defaults.UserID, logger)

	var (
		redisClient *redis.Client
		healthRedis redis.Cmdable
		eventQueue  *queue.Queue
		eventWorker *worker.Worker
		rateLimiter *middleware.RateLimiter
		sink        queue.Sink = queue.NewLogSink(logger)
	)

	if cfg.RedisEnabled() {
		redisClient, err = queue.Connect(context.Background(), cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		healthRedis = redisClient
		logger.Info("connected to Redis")

		eventQueue = queue.NewQueue(redisClient, cfg.Redis.EventsQueue, logger)
		sink = eventQueue

		eventWorker = worker.NewWorker(eventQueue, worker.LogHandler(logger), logger)
		eventWorker.Start(cfg.Redis.EventWorkers)

		if cfg.RateLimit.Enabled {
			rateLimiter = middleware.NewRateLimiter(redisClient, logger)
		}
	} else {
		logger.Info("REDIS_URL not set; events are logged and rate limiting is off")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		JWT:         jwtService,
		API:         client,
		Resolver:    resolver,
		RateLimiter: rateLimiter,
		Events:      sink,
		Health:      handlers.NewHealthHandler(healthRedis, eventQueue, client.BaseURL()),
		Defaults:    cfg.Defaults,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.API.Timeout + 15*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Server.Port,
			"api_base_url", client.BaseURL(),
			"project_id", cfg.JWT.ProjectID,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if eventWorker != nil {
			eventWorker.Stop()
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "err", err)
	}

	if eventWorker != nil {
		eventWorker.Stop()
	}

	logger.Info("server exited properly")
	return nil
}

func newSessionStore(cfg config.SessionConfig, logger *slog.Logger) *sessions.CookieStore {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
		secret = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
