package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/gatewayserver"
)

func hostGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host-gateway",
		Short: "Run the Host Gateway HTTP server standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHostGateway()
		},
	}
}

func runHostGateway() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := gatewayserver.New(cfg.Gateway, log)
	if err != nil {
		return fmt.Errorf("create gateway server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}
