package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notes/internal"
	"github.com/starford/notes/internal/api"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/search"
	pkgconfig "github.com/starford/notes/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	load := pkgconfig.Load[internal.Config]
	// Only the server insists on a config file; the other commands run on defaults.
	if cmd.Name != "serve" && cmd.Name != cmd.Root().Name {
		load = pkgconfig.LoadOptional[internal.Config]
	}
	if err := load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	shown := 0
	total, err := internal.Search(ctx, cmd.String("query"), func(r search.Result) {
		shown++
		fmt.Fprintf(out, "%-12s %-36s %s\n", r.Note.Date.Format(api.DateLabelLayout), r.Note.ID, r.Markup)
	}, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	fmt.Fprintf(out, "%d of %d (%s)\n", shown, total, api.Placeholder(total))
	return nil
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gen := notestore.GenerateOptions{
		Count:      int(cmd.Int("count")),
		Paragraphs: int(cmd.Int("paragraphs")),
	}
	if preset := cmd.String("preset"); preset != "" {
		if gen, err = notestore.Preset(preset).Options(); err != nil {
			return err
		}
	}

	ids, err := internal.Generate(ctx, gen, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	slog.Info("notes generated", slog.Int("count", len(ids)))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "notes",
		Usage:  "Persisted notes with incremental search and match highlighting",
		Action: run,
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
				Usage:  "Serve the HTTP API (default)",
				Action: run,
			},
			{
				Name:   "mcp",
				Usage:  "Serve note tools over MCP stdio",
				Action: runMCP,
			},
			{
				Name:   "search",
				Usage:  "Print notes matching a query, newest first, with matches marked",
				Action: runSearch,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Case-insensitive substring to filter by",
					},
				},
			},
			{
				Name:   "generate",
				Usage:  "Add demo notes with lorem text",
				Action: runGenerate,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of notes"},
					&cli.IntFlag{Name: "paragraphs", Aliases: []string{"p"}, Value: 1, Usage: "Paragraphs per note"},
					&cli.StringFlag{Name: "preset", Usage: "note, huge or hundred; overrides count and paragraphs"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
