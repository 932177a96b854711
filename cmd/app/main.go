package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdblog/internal"
	pkgconfig "github.com/starford/mdblog/pkg/config"
)

type runFunc func(ctx context.Context, opts ...internal.Option) error

// action loads the config named by --config and hands it to run.
func action(run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		loaded, err := pkgconfig.LoadOptional(configPath, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if !loaded {
			fmt.Fprintf(os.Stderr, "config file %s not found, using defaults\n", configPath)
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}

		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "mdblog",
		Usage:  "Markdown blog engine: syncs an articles directory into SQLite and serves it over HTTP",
		Action: action(internal.Run),
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
				Name:   "serve",
				Usage:  "Sync the articles directory, then serve the HTTP API (default)",
				Action: action(internal.Run),
			},
			{
				Name:   "sync",
				Usage:  "Reconcile the store with the articles directory once and exit",
				Action: action(internal.RunSync),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: action(internal.RunMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
