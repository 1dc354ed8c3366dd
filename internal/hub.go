package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/onyx/internal/hub"
	"github.com/starford/onyx/internal/metrics"
	"github.com/starford/onyx/internal/sse"
)

// RunHub starts the remote replica service.
func RunHub(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if err := cfg.Hub.RequireSecret(); err != nil {
		return err
	}

	logger, closeLog := newLogger(app)
	defer closeLog()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Hub.HTTP.Address()),
		slog.String("sqlite_path", cfg.Hub.SQLitePath),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.String("version", app.version))

	db, err := hub.Open(cfg.Hub.SQLitePath)
	if err != nil {
		return fmt.Errorf("init hub db: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	reg := newRegistry()
	tokens := hub.NewTokens(cfg.Hub.JWTSecret, cfg.Hub.TokenTTL)
	svc := hub.NewService(db, tokens, broker, logger)
	hubRouter := hub.NewRouter(hub.NewHandler(svc, tokens, broker, logger), metrics.NewHTTP(reg), reg)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	healthRoutes(r)
	r.Mount("/", hubRouter)

	srv := &http.Server{
		Addr:    cfg.Hub.HTTP.Address(),
		Handler: r,
	}
	// Event streams end when the broker closes.
	srv.RegisterOnShutdown(broker.Close)
	return serve(ctx, logger, srv)
}
