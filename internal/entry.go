// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/onyx/internal/api"
	"github.com/starford/onyx/internal/assistant"
	"github.com/starford/onyx/internal/auth"
	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/localcache"
	"github.com/starford/onyx/internal/metrics"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/notify"
	"github.com/starford/onyx/internal/reminder"
	"github.com/starford/onyx/internal/replica"
	"github.com/starford/onyx/internal/sse"
	"github.com/starford/onyx/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. With app.log_file set every
// line is also written to a rotated file.
func newLogger(app *application) (*slog.Logger, func()) {
	cfg := app.config.App
	var out io.Writer = app.stdout
	closeFn := func() {}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(app.stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger, closeFn
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func healthRoutes(r chi.Router) {
	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health/live", ok)
	r.Get("/health/ready", ok)
}

// serve runs srv and the extra workers until a signal arrives or any of
// them fails, then shuts the server down gracefully.
func serve(ctx context.Context, logger *slog.Logger, srv *http.Server, workers ...func(context.Context) error) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	for _, w := range workers {
		g.Go(func() error { return w(gCtx) })
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForSignal(gCtx, logger)
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stop the workers once the server is down.
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

func waitForSignal(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

// core is the state machinery shared by the agent and the MCP server.
type core struct {
	cache    *localcache.Cache
	orch     *syncer.Orchestrator
	provider auth.Provider
	loc      *time.Location
	closers  []func() error
}

func (c *core) Close() {
	if c.orch != nil {
		c.orch.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

// newCore opens the cache, resolves the remote and the session provider and
// starts the orchestrator. The orchestrator follows the provider's session.
func newCore(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*core, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	c := &core{loc: loc}

	store, closeStore, err := localcache.Open(cfg.Cache.Driver, cfg.Cache.Dir, cfg.Cache.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	c.closers = append(c.closers, closeStore)
	c.cache = localcache.New(store, logger)

	var remote replica.Remote
	switch cfg.Remote.Driver {
	case replica.DriverHub:
		hp := auth.NewHubProvider(cfg.Remote.HubURL, store, logger)
		c.provider = hp
		remote = replica.NewHub(cfg.Remote.HubURL, auth.TokenSource(hp), logger)
	case replica.DriverRedis:
		rd, err := replica.NewRedis(ctx, replica.RedisOptions{
			Addr:     cfg.Remote.RedisAddr,
			Password: cfg.Remote.RedisPassword,
			DB:       cfg.Remote.RedisDB,
		}, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, rd.Close)
		c.provider = auth.NewStatic(cfg.Auth.UserID)
		remote = rd
	default:
		c.provider = auth.NewStatic("")
	}

	c.orch, err = syncer.New(syncer.Options{
		Cache:       c.cache,
		Remote:      remote,
		Logger:      logger,
		Location:    loc,
		PushTimeout: cfg.Remote.PushTimeout,
		Metrics:     metrics.NewSync(reg),
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	unsub := c.provider.OnChange(func(s *auth.Session) {
		if err := c.orch.SetUser(context.Background(), auth.UserID(s)); err != nil {
			logger.Warn("agent: follow session failed", slog.String("error", err.Error()))
		}
	})
	c.closers = append(c.closers, func() error { unsub(); return nil })

	if c.provider.Current() == nil && cfg.Auth.Email != "" {
		if _, err := c.provider.SignIn(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
			logger.Warn("agent: headless sign-in failed", slog.String("error", err.Error()))
		}
	}
	if err := c.orch.SetUser(ctx, auth.UserID(c.provider.Current())); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// RunAgent starts the local agent: the orchestrator, its REST API, event
// stream and the reminder scanner.
func RunAgent(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(app)
	defer closeLog()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("remote_driver", cfg.Remote.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.String("version", app.version))

	reg := newRegistry()
	c, err := newCore(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer c.Close()

	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	stopBridge, err := api.Bridge(ctx, c.orch, broker)
	if err != nil {
		return err
	}
	defer stopBridge()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		notifier = notify.NewSSE(broker, logger)
	}

	chat := assistant.NewClaude(assistant.Config{
		APIKey:    cfg.Assistant.APIKey,
		BaseURL:   cfg.Assistant.BaseURL,
		Model:     cfg.Assistant.Model,
		MaxTokens: cfg.Assistant.MaxTokens,
		Location:  c.loc,
	}, logger)

	apiRouter := api.NewRouter(api.Deps{
		Orchestrator: c.orch,
		Auth:         c.provider,
		Assistant:    chat,
		DueDates:     duedate.New(c.loc),
		Logger:       logger,
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		Token:        cfg.Auth.Token,
		Events:       broker,
	})

	httpMetrics := metrics.NewHTTP(reg)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(httpMetrics.Middleware)

	healthRoutes(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	r.Mount("/api", apiRouter)

	srv := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}
	// Event streams end when the broker closes.
	srv.RegisterOnShutdown(broker.Close)

	var workers []func(context.Context) error
	if cfg.Reminders.Enabled {
		scanner := reminder.New(c.orch, notifier, reminder.Options{
			Interval: cfg.Reminders.Interval,
			Location: c.loc,
			Logger:   logger,
		})
		workers = append(workers, scanner.Run)
	}
	workers = append(workers, func(ctx context.Context) error {
		err := c.cache.Watch(ctx, func(s *models.AppState) {
			if err := c.orch.ApplyExternal(ctx, s); err != nil {
				logger.Warn("agent: apply external state failed", slog.String("error", err.Error()))
			}
		})
		if errors.Is(err, localcache.ErrWatchUnsupported) {
			logger.Info("agent: cache store has no change feed")
			return nil
		}
		return err
	})

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))
	return serve(ctx, logger, srv, workers...)
}
