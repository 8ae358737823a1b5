package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/plotterd/plotterd/internal/api_server"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/events"
	"github.com/plotterd/plotterd/internal/executor"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/guard"
	handlers "github.com/plotterd/plotterd/internal/handlers/v1alpha1"
	"github.com/plotterd/plotterd/internal/hook"
	"github.com/plotterd/plotterd/internal/optimizer"
	"github.com/plotterd/plotterd/internal/planner"
	"github.com/plotterd/plotterd/internal/recovery"
	"github.com/plotterd/plotterd/internal/service"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the plotter daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		teardown, err := log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
		if err != nil {
			return err
		}
		defer teardown()

		zap.S().Info("Starting plotterd")
		defer zap.S().Info("plotterd stopped")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		dataStore := store.NewStore(db)
		defer dataStore.Close()

		if err := dataStore.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		subscribers := events.NewSubscriberWriter()
		producer := events.NewEventProducer(events.NewMultiWriter(&events.StdoutWriter{}, subscribers))
		defer func() { _ = producer.Close() }()

		lease := executor.NewLease()

		var device executor.Device
		switch cfg.Plotter.Device {
		case "sim":
			device = executor.NewSimDevice(2 * time.Millisecond)
		default:
			zap.S().Warnw("unknown device, falling back to simulator", "device", cfg.Plotter.Device)
			device = executor.NewSimDevice(2 * time.Millisecond)
		}

		var recorder *guard.HTTPRecorder
		if cfg.Plotter.CameraURL != "" {
			recorder = guard.NewHTTPRecorder(cfg.Plotter.CameraURL)
		}

		registry := guard.NewRegistry()
		registry.Register(guard.CategoryPreOptimize, guard.NewPensAssigned(dataStore))
		registry.Register(guard.CategoryPreArm, guard.NewDeviceIdle(lease, dataStore, device))
		registry.Register(guard.CategoryPreArm, guard.NewPhysicalSetup(dataStore, guard.Setup{
			PaperSize:        cfg.Plotter.PaperSize,
			PaperOrientation: cfg.Plotter.PaperOrientation,
		}))
		registry.Register(guard.CategoryPreArm, guard.NewChecklist(dataStore.Checklist(), cfg.Plotter.ChecklistItems))
		if recorder != nil {
			registry.Register(guard.CategoryPreArm, guard.NewCameraHealth(recorder))
		}
		registry.Register(guard.CategoryPrePlot, guard.NewDeviceIdle(lease, dataStore, device))

		hooks, err := hook.ParseSpecs(cfg.Plotter.Hooks)
		if err != nil {
			zap.S().Fatalw("parsing hook specs", "error", err)
		}
		runner := hook.NewRunner(hooks, cfg.Plotter.HookTimeout)

		machine := fsm.NewMachine(dataStore, registry, runner, producer,
			fsm.WithEstimator(
				planner.NewTravelEstimator(planner.DefaultSpeedMMS, planner.DefaultLiftSeconds),
				cfg.Plotter.PenChangeOverheadSeconds,
			))

		var camera executor.Camera
		if recorder != nil {
			camera = recorder
		}
		exec := executor.New(dataStore, machine, device, lease, producer, camera, cfg.Plotter.HeartbeatInterval)

		recoveryMgr := recovery.NewManager(dataStore, machine, exec, lease, cfg.Plotter.RecoveryGracePeriod)
		if err := recoveryMgr.StartupScan(ctx); err != nil {
			zap.S().Fatalw("recovering interrupted jobs", "error", err)
		}

		jobService := service.NewJobService(dataStore, machine, exec, lease,
			optimizer.NewExecOptimizer(cfg.Plotter.OptimizerBin), cfg)
		penService := service.NewPenService(dataStore)
		handler := handlers.NewServiceHandler(jobService, penService, recoveryMgr)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}
			server := apiserver.New(cfg, handler, subscribers, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}
			server := apiserver.NewMetricsServer(cfg.Service.MetricsAddress, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
