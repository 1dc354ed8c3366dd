package internal

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/onyx/internal/duedate"
	"github.com/starford/onyx/internal/localcache"
	"github.com/starford/onyx/internal/mcpserver"
	"github.com/starford/onyx/internal/models"
)

// RunMCP serves the MCP tools on stdio over the same cache and remote as
// the agent.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(app)
	defer closeLog()

	c, err := newCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.orch, duedate.New(c.loc), app.version)

	ctx, stop := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// ServeStdio returns on EOF or a termination signal.
		defer stop()
		return srv.ServeStdio()
	})
	g.Go(func() error {
		err := c.cache.Watch(gCtx, func(s *models.AppState) {
			if err := c.orch.ApplyExternal(gCtx, s); err != nil {
				logger.Warn("mcp: apply external state failed", slog.String("error", err.Error()))
			}
		})
		if errors.Is(err, localcache.ErrWatchUnsupported) {
			return nil
		}
		return err
	})
	return g.Wait()
}
