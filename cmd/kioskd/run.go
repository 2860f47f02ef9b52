package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/micro-ha/kiosk-lock/internal/auditqueue"
	"github.com/micro-ha/kiosk-lock/internal/clock"
	"github.com/micro-ha/kiosk-lock/internal/config"
	"github.com/micro-ha/kiosk-lock/internal/gateway"
	httpapi "github.com/micro-ha/kiosk-lock/internal/http"
	"github.com/micro-ha/kiosk-lock/internal/http/handlers"
	"github.com/micro-ha/kiosk-lock/internal/identity"
	"github.com/micro-ha/kiosk-lock/internal/logging"
	"github.com/micro-ha/kiosk-lock/internal/pairing"
	"github.com/micro-ha/kiosk-lock/internal/poller"
	"github.com/micro-ha/kiosk-lock/internal/storage"
)

func runCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the lock daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg, logging.New(cfg.LogLevel))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	return cmd
}

func runDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	var sealer *storage.Sealer
	if cfg.KeyFile != "" {
		s, err := storage.LoadOrCreateSealer(cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("load sealing key: %w", err)
		}
		sealer = s
	} else {
		logger.Warn("KEY_FILE is empty; stored credentials are not sealed")
	}

	repo, err := storage.New(ctx, cfg.DBPath, sealer, logger)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer repo.Close()

	ident, err := identity.New(ctx, repo, logger)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if _, err := ident.GetOrCreateDeviceID(ctx); err != nil {
		return fmt.Errorf("device id: %w", err)
	}

	clk := clock.Real()
	gw := gateway.NewClient(cfg.Gateway, cfg.Tunables, logger)
	audit := auditqueue.New(repo, gw, ident, clk, logger)
	statusPoller := poller.New(ident, gw, audit, clk, cfg.Tunables, logger)
	pairer := pairing.New(ident, gw, audit, statusPoller, logger)

	api := handlers.New(handlers.Deps{
		BaseContext: ctx,
		Poller:      statusPoller,
		Identity:    ident,
		Pairing:     pairer,
		Audit:       audit,
		Storage:     repo,
		Logger:      logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	statusPoller.Start(ctx)
	defer statusPoller.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "device_id", ident.Current().DeviceID)
		return httpapi.RunServer(groupCtx, server)
	})
	group.Go(func() error {
		logStates(groupCtx, statusPoller, logger)
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server terminated: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// logStates writes every published lock state so the daemon log doubles as a
// screen history.
func logStates(ctx context.Context, p *poller.Poller, logger *slog.Logger) {
	sub := p.States()
	defer sub.Close()
	for {
		state, err := sub.Next(ctx)
		if err != nil {
			return
		}
		logger.Info("lock state",
			"kind", state.Kind,
			"reason", state.Reason,
			"seconds_remaining", state.SecondsRemaining,
		)
	}
}
