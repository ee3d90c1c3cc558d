package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bnema/mxload/internal/adapters/render/report"
	"github.com/bnema/mxload/internal/adapters/repo/csvstore"
	"github.com/bnema/mxload/internal/coordinator"
	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/metrics"
	"github.com/bnema/mxload/internal/scenario"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var (
		scenarioName string
		masterURL    string
		homeserver   string
		spawnRate    float64
		maxClients   int
		seed         int64
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one scenario over the partition the master assigns",
		Long:  "worker dials the master, receives its roster partition and drives the chosen scenario over it: " + strings.Join(scenario.Names(), ", ") + ".",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = app.log.Sync() }()

			if cmd.Flags().Changed("master") {
				app.cfg.MasterURL = masterURL
			}
			if cmd.Flags().Changed("homeserver") {
				app.cfg.HomeserverURL = homeserver
			}
			if cmd.Flags().Changed("spawn-rate") {
				app.cfg.SpawnRate = spawnRate
			}
			if cmd.Flags().Changed("max-clients") {
				app.cfg.MaxClients = maxClients
			}
			if cmd.Flags().Changed("seed") {
				app.cfg.Seed = seed
			}

			return runWorker(cmd, app, scenarioName)
		},
	}

	cmd.Flags().StringVar(&scenarioName, "scenario", "chat", "Scenario to run ("+strings.Join(scenario.Names(), "|")+")")
	cmd.Flags().StringVar(&masterURL, "master", "ws://127.0.0.1:5557/ws", "Master websocket URL")
	cmd.Flags().StringVar(&homeserver, "homeserver", "", "Homeserver base URL (overrides config)")
	cmd.Flags().Float64Var(&spawnRate, "spawn-rate", 3, "Session starts per second for the chat scenario")
	cmd.Flags().IntVar(&maxClients, "max-clients", 0, "Concurrent session cap for the chat scenario; 0 = whole partition")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Scheduler rng seed; 0 derives one from the clock")

	return cmd
}

func runWorker(cmd *cobra.Command, app *app, scenarioName string) error {
	log := app.log

	behavior, err := app.behaviorProfile()
	if err != nil {
		return err
	}

	var plans domain.RoomAssignment
	if scenarioName == "create-rooms" || scenarioName == "accept-invites" {
		rooms, err := csvstore.NewRoomFile(app.cfg.RoomsPath)
		if err != nil {
			return err
		}
		if plans, err = rooms.Load(cmd.Context()); err != nil {
			return err
		}
	}

	seed := app.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		link      *coordinator.Worker
		partition []domain.Credential
	)
	err = runWaitSpinner(runCtx, cmd.OutOrStdout(), "Waiting for master...", func(ctx context.Context) error {
		var dialErr error
		link, partition, dialErr = coordinator.Dial(ctx, coordinator.WorkerConfig{
			Log:       log,
			MasterURL: app.cfg.MasterURL,
			Scenario:  scenarioName,
		})
		return dialErr
	})
	if err != nil {
		return err
	}
	defer link.Close()

	driver, err := scenario.ForName(scenarioName, scenario.Config{
		Log:           log,
		API:           app.matrixClient(),
		SyncTimeout:   app.cfg.SyncTimeout,
		Profile:       behavior,
		RoomPlans:     plans,
		MaxClients:    app.cfg.MaxClients,
		SpawnRate:     app.cfg.SpawnRate,
		Seed:          seed,
		OnTokenUpdate: link.SendTokenUpdate,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	log.Info("scenario starting",
		zap.String("scenario", scenarioName), zap.Int("users", len(partition)))
	if err := driver.Run(runCtx, partition); err != nil {
		return err
	}

	stats, err := metrics.GatherRequests()
	if err != nil {
		log.Warn("request summary unavailable", zap.Error(err))
		return nil
	}
	rendered, err := report.Render(stats, report.RenderOptions{Duration: time.Since(started)})
	if err != nil {
		log.Warn("request summary render failed", zap.Error(err))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
