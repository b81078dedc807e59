package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pairchat/pairchat/api"
	"github.com/pairchat/pairchat/api/auth"
	"github.com/pairchat/pairchat/api/events"
	"github.com/pairchat/pairchat/api/validator"
	"github.com/pairchat/pairchat/metrics"
	"github.com/pairchat/pairchat/postgres"
	"github.com/pairchat/pairchat/redis"
)

func main() {
	_ = godotenv.Load()

	cfg := loadConfig()
	logger := newLogger(cfg.Env)

	if err := cfg.validate(); err != nil {
		logger.Error("Invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func run(cfg config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := postgres.Connect(connectCtx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if err := pg.Migrate(connectCtx); err != nil {
		return err
	}
	logger.Info("Connected to PostgreSQL")

	presence, err := redis.Connect(connectCtx, cfg.RedisAddr, cfg.typingTTL())
	if err != nil {
		return err
	}
	logger.Info("Connected to Redis")

	a := &api.API{
		Logger:   logger,
		DB:       pg,
		Presence: presence,
		Hub:      events.NewHub(),
		Auth:     auth.NewVerifier(cfg.JWTSecret),
		Val:      validator.New(),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", metrics.Middleware(a))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
