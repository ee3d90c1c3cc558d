package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/adapters/repo/csvstore"
	"github.com/bnema/mxload/internal/coordinator"
)

func newMasterCmd(opts *rootOptions) *cobra.Command {
	var (
		workers  int
		listen   string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Coordinate a load run: partition the roster, collect tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.log.Sync() }()

			if cmd.Flags().Changed("workers") {
				app.cfg.WorkerCount = workers
			}
			if cmd.Flags().Changed("listen") {
				app.cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("duration") {
				app.cfg.RunDuration = duration
			}

			return runMaster(cmd.Context(), app)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 1, "Number of workers to partition the roster for")
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:5557", "Address to serve the worker websocket and /metrics on")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Run length; 0 runs until interrupted")

	return cmd
}

func runMaster(ctx context.Context, app *app) error {
	log := app.log

	roster, err := csvstore.NewRosterFile(app.cfg.RosterPath)
	if err != nil {
		return err
	}
	tokens, err := csvstore.NewTokenFile(app.cfg.TokensPath)
	if err != nil {
		return err
	}

	users, err := roster.Load(ctx)
	if err != nil {
		return err
	}
	log.Info("roster loaded",
		zap.Int("users", len(users)),
		zap.Int("workers", app.cfg.WorkerCount))

	registry := coordinator.NewRegistry(log, tokens)
	if err := registry.Load(ctx); err != nil {
		return err
	}

	master, err := coordinator.NewMaster(coordinator.MasterConfig{
		Log:         log,
		ListenAddr:  app.cfg.ListenAddr,
		WorkerCount: app.cfg.WorkerCount,
		Roster:      users,
		Registry:    registry,
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if app.cfg.RunDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, app.cfg.RunDuration)
		defer cancel()
	}

	log.Info("master listening", zap.String("addr", app.cfg.ListenAddr))
	if err := master.Run(runCtx); err != nil {
		return err
	}

	if err := registry.Flush(context.Background()); err != nil {
		return err
	}
	log.Info("run complete", zap.Int("tokens", len(registry.Snapshot())))
	return nil
}
