package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cianaparrot/cianaparrot/internal/agent/cliagent"
	"github.com/cianaparrot/cianaparrot/internal/bridge"
	"github.com/cianaparrot/cianaparrot/internal/channel"
	"github.com/cianaparrot/cianaparrot/internal/channel/telegram"
	"github.com/cianaparrot/cianaparrot/internal/config"
	"github.com/cianaparrot/cianaparrot/internal/counters"
	"github.com/cianaparrot/cianaparrot/internal/gatewayclient"
	"github.com/cianaparrot/cianaparrot/internal/model"
	"github.com/cianaparrot/cianaparrot/internal/router"
	"github.com/cianaparrot/cianaparrot/internal/scheduler"
	"github.com/cianaparrot/cianaparrot/internal/taskstore"
	"github.com/cianaparrot/cianaparrot/internal/turnlog"
	"github.com/cianaparrot/cianaparrot/internal/userstate"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the router, scheduler, and channel adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll()
		},
	}
}

func runAll() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	taskStore := taskstore.New(config.ExpandHome(cfg.Storage.TaskFile))
	turnLog := turnlog.New(config.ExpandHome(cfg.Storage.TurnLogDir))

	counterStore, err := counters.New(config.ExpandHome(cfg.Storage.SessionCountersFile))
	if err != nil {
		return fmt.Errorf("open session counters: %w", err)
	}
	// Before serving any message, reconcile persisted reset counters against
	// whatever suffixes the external conversation-checkpoint namespace has
	// already observed, so restoring from a backup never collides thread ids.
	if err := counterStore.ReconcileObserved(observedResetCounters()); err != nil {
		return fmt.Errorf("reconcile session counters: %w", err)
	}

	userStateStore, err := userstate.New(config.ExpandHome(cfg.Storage.UserStateFile))
	if err != nil {
		return fmt.Errorf("open user state: %w", err)
	}

	var gwClient *gatewayclient.Client
	if cfg.Bridge.GatewayURL != "" {
		gwClient = gatewayclient.New(cfg.Bridge.GatewayURL, cfg.Gateway.Token, cfg.Bridge.GatewayBridge)
	}
	bridgeMgr := bridge.New(cfg.Bridge, userStateStore, gwClient, log)

	ag := cliagent.New(cfg.Agent.CLIPath, time.Duration(cfg.Agent.TimeoutSeconds*float64(time.Second)))

	registry := channel.NewRegistry()
	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(cfg.Telegram, log)
		if err != nil {
			return fmt.Errorf("create telegram channel: %w", err)
		}
		registry.Register(tg)
	}

	rtr := router.New(cfg.Router, counterStore, turnLog, bridgeMgr, ag, registry, log)
	if tg, ok := registry.Get("telegram"); ok {
		tg.SetHandler(func(ctx context.Context, msg model.IncomingMessage) {
			if err := rtr.HandleMessage(ctx, msg); err != nil {
				log.Error("router: handle message failed", "error", err)
			}
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(taskStore, ag, registry, time.Duration(cfg.Scheduler.PollInterval*float64(time.Second)), log)
		sched.Start(ctx)
	}

	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	log.Info("cianaparrot running")
	<-ctx.Done()
	log.Info("shutting down")

	registry.StopAll()
	if sched != nil {
		sched.Stop()
	}
	return nil
}

// observedResetCounters returns the reset-counter suffixes seen in the
// external conversation-checkpoint namespace. That namespace is owned by
// the out-of-scope agent collaborator; until a concrete integration exists,
// this returns no observations, leaving persisted counters unchanged.
func observedResetCounters() map[string]int {
	return map[string]int{}
}
