package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/zotindex/internal"
	"github.com/starford/zotindex/internal/itemservice"
	"github.com/starford/zotindex/internal/library"
	pkgconfig "github.com/starford/zotindex/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// withService opens the library for a one-shot command.
func withService(cmd *cli.Command, fn func(*library.Library, *itemservice.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	lib, logger, err := internal.OpenLibrary(internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib, itemservice.NewService(lib, lib.Attachments(), nil, logger))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncCmd(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(_ *library.Library, svc *itemservice.Service) error {
		rep, err := svc.Sync(ctx, cmd.Bool("force"))
		if err != nil {
			return err
		}
		return printJSON(rep)
	})
}

func status(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(_ *library.Library, svc *itemservice.Service) error {
		st, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	})
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return errors.New("search: query argument is required")
	}
	return withService(cmd, func(lib *library.Library, svc *itemservice.Service) error {
		if err := lib.EnsureBuilt(); err != nil {
			return err
		}
		results, err := svc.Search(ctx, query, cmd.String("column"), int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		return printJSON(results)
	})
}

func item(ctx context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return errors.New("item: key argument is required")
	}
	return withService(cmd, func(lib *library.Library, svc *itemservice.Service) error {
		if err := lib.EnsureBuilt(); err != nil {
			return err
		}
		it, err := svc.GetItem(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(it)
	})
}

func reset(_ context.Context, cmd *cli.Command) error {
	return withService(cmd, func(lib *library.Library, _ *itemservice.Service) error {
		return lib.Reset()
	})
}

func main() {
	cmd := &cli.Command{
		Name:    "zotindex",
		Usage:   "Local full-text index and item cache over a Zotero library",
		Version: internal.Version,
		Action:  serve,
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
				Usage:  "Run the HTTP API and watch the Zotero database",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: mcp,
			},
			{
				Name:   "sync",
				Usage:  "Refresh the mirror, cache and search indexes when stale",
				Action: syncCmd,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Rebuild even when fresh"},
				},
			},
			{
				Name:   "status",
				Usage:  "Print library statistics",
				Action: status,
			},
			{
				Name:      "search",
				Usage:     "Search the library",
				ArgsUsage: "<query>",
				Action:    search,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "column", Usage: "Restrict the search to one column"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: itemservice.DefaultLimit, Usage: "Maximum results"},
				},
			},
			{
				Name:      "item",
				Usage:     "Print one cached item",
				ArgsUsage: "<key>",
				Action:    item,
			},
			{
				Name:   "reset",
				Usage:  "Delete the mirror, cache and indexes",
				Action: reset,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
