package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/onyx/internal"
	pkgconfig "github.com/starford/onyx/pkg/config"
)

var version = "dev"

type runner func(ctx context.Context, opts ...internal.Option) error

func action(run runner, extra ...internal.Option) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		opts := append([]internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}, extra...)

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "onyx",
		Usage:   "Productivity tracker state sync: local agent, replica hub and MCP tools",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "agent",
				Usage:  "Run the local agent with its REST API",
				Action: action(internal.RunAgent),
			},
			{
				Name:   "hub",
				Usage:  "Run the remote replica hub",
				Action: action(internal.RunHub),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: action(internal.RunMCP, internal.WithLogOutput(os.Stderr)),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
