package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bidon15/licensesale/internal/app"
	"github.com/Bidon15/licensesale/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sale daemon",
		Long: `Serve JSON-RPC on /rpc and the REST API on /v1 until interrupted.

With database.url set, migrations run first (unless database.migrate is
false) and the persisted sale state is restored before serving.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := config.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Starting licensesaled",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("addr", cfg.Server.Addr))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
