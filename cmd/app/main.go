package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/canvasfocus/internal"
	pkgconfig "github.com/starford/canvasfocus/pkg/config"
)

// loadConfig reads the config file. A missing file is replaced by a starter
// config holding the defaults.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := pkgconfig.Save(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to write starter config: %w", err)
		}
		slog.Info("wrote starter config", slog.String("path", configPath))
	}
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runMode(mode string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithMode(mode),
		}

		if err := internal.Run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}

		return nil
	}
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete every document under %s/%s?", cfg.Vault.Path, cfg.Focus.ScratchPath)).
				Description("Run this only while the daemon is stopped.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed),
		))
		err := form.RunWithContext(ctx)
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	logger, closer := internal.NewLogger(cfg, internal.ModeServe)
	defer closer.Close()

	n, err := internal.SweepScratch(cfg, logger)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Printf("Removed %d temporary document(s).\n", n)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "canvasfocus",
		Usage:  "Focus surface and two-way text sync for JSON Canvas boards in a Markdown vault",
		Action: runMode(internal.ModeServe),
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
				Usage:  "Run the daemon with the HTTP API and SSE events",
				Action: runMode(internal.ModeServe),
			},
			{
				Name:   "mcp",
				Usage:  "Run the daemon with an MCP server on stdio",
				Action: runMode(internal.ModeMCP),
			},
			{
				Name:  "sweep",
				Usage: "Delete leftover temporary documents from the scratch area",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the confirmation prompt",
					},
				},
				Action: sweep,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
