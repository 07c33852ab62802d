package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lcalzada-xor/tmap/internal/adapters/grpchealth"
	"github.com/lcalzada-xor/tmap/internal/adapters/redisingest"
	"github.com/lcalzada-xor/tmap/internal/adapters/storage"
	webserver "github.com/lcalzada-xor/tmap/internal/adapters/web/server"
	"github.com/lcalzada-xor/tmap/internal/config"
	"github.com/lcalzada-xor/tmap/internal/core/services/alerts"
	"github.com/lcalzada-xor/tmap/internal/core/services/analytics"
	"github.com/lcalzada-xor/tmap/internal/core/services/broadcast"
	"github.com/lcalzada-xor/tmap/internal/core/services/ingest"
	"github.com/lcalzada-xor/tmap/internal/core/services/realtime"
	"github.com/lcalzada-xor/tmap/internal/core/services/registry"
	"github.com/lcalzada-xor/tmap/internal/core/services/snapshot"
	"github.com/lcalzada-xor/tmap/internal/geo"
	"github.com/lcalzada-xor/tmap/internal/mock"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

const (
	ingestBufferSize  = 10000
	pipelineDrainWait = 10 * time.Second
)

// Application holds the core components of the application.
// It wires storage, the realtime services and every transport together.
type Application struct {
	Config       *config.Config
	Store        *storage.Store
	Registry     *registry.ConnectionRegistry
	Snapshots    *snapshot.Service
	Realtime     *realtime.Service
	Pipeline     *ingest.Pipeline
	Scheduler    *broadcast.Scheduler
	WebServer    *webserver.Server
	HealthServer *grpchealth.Server

	// Optional point sources
	Subscriber *redisingest.Subscriber
	Simulator  *mock.Simulator

	logger *slog.Logger
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &Application{
		Config: cfg,
		logger: logger,
	}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	cfg := app.Config

	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()

	store, err := storage.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	app.Store = store

	// 2. Realtime core
	app.Registry = registry.NewConnectionRegistry()
	app.Registry.AddObserver(telemetry.ConnectionGauge{})

	app.Snapshots = snapshot.NewService(store, snapshot.Config{
		DefaultLimit: cfg.PointLimit,
		MaxLimit:     cfg.PointLimitMax,
		QueryTimeout: cfg.QueryTimeout,
	})
	app.Realtime = realtime.NewService(app.Registry, app.Snapshots, cfg.PointLimit, app.logger.With("component", "realtime"))

	app.Pipeline = ingest.NewPipeline(store, ingestBufferSize, app.logger.With("component", "ingest"))
	app.Pipeline.OnFlush(app.Realtime.BroadcastNewPoints)

	app.HealthServer = grpchealth.NewServer(app.logger)
	app.Scheduler = broadcast.NewScheduler(app.Registry, app.Snapshots, app.HealthServer, broadcast.Config{
		Interval: cfg.BroadcastInterval,
		Limit:    cfg.PointLimit,
	}, app.logger.With("component", "broadcast"))

	// 3. Servers
	app.WebServer = webserver.NewServer(cfg.Addr, webserver.Deps{
		Points:         app.Snapshots,
		Analytics:      analytics.NewService(store),
		Alerts:         alerts.NewService(store),
		Sink:           app.Pipeline,
		Store:          store,
		Realtime:       app.Realtime,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         app.logger.With("component", "web"),
	})

	// 4. Point sources
	if cfg.RedisAddr != "" {
		app.Subscriber = redisingest.NewSubscriber(cfg.RedisAddr, cfg.RedisChannel, app.Pipeline, app.logger)
	}
	if cfg.MockMode {
		app.Simulator = mock.NewSimulator(app.Pipeline, store, geo.NewStaticProvider(mock.BengaluruCenter.Lat, mock.BengaluruCenter.Lng), "", cfg.BroadcastInterval, app.logger)
		app.logger.Info("Mock Mode Active: simulating Bengaluru road sensors")
	}

	return nil
}

// Run starts the application components and blocks until ctx is cancelled
// or a component fails.
func (app *Application) Run(ctx context.Context) error {
	app.logger.Info("Starting TMAP components...")

	g, gctx := errgroup.WithContext(ctx)

	// 1. Background processing
	app.Pipeline.Start(gctx)
	app.Scheduler.Start(gctx)

	// 2. Servers
	g.Go(func() error {
		if err := app.WebServer.Run(gctx); err != nil {
			return fmt.Errorf("web server error: %w", err)
		}
		return nil
	})

	if app.Config.GRPCPort > 0 {
		g.Go(func() error {
			if err := app.HealthServer.Serve(gctx, app.Config.GRPCPort); err != nil {
				return fmt.Errorf("grpc server error: %w", err)
			}
			return nil
		})
	}

	// 3. Point sources
	if app.Subscriber != nil {
		g.Go(func() error {
			if err := app.Subscriber.Run(gctx); err != nil {
				return fmt.Errorf("redis ingest error: %w", err)
			}
			return nil
		})
	}
	if app.Simulator != nil {
		g.Go(func() error {
			return app.Simulator.Run(gctx)
		})
	}

	app.logger.Info("TMAP Ready. Press Ctrl+C to terminate.")

	err := g.Wait()
	if err != nil {
		app.logger.Error("Component failed", "error", err)
	} else {
		app.logger.Info("Termination signal received")
	}

	return errors.Join(err, app.cleanup())
}

func (app *Application) cleanup() error {
	app.logger.Info("Cleaning up resources...")

	app.Scheduler.Stop()
	app.Realtime.Shutdown()

	select {
	case <-app.Pipeline.Done():
	case <-time.After(pipelineDrainWait):
		app.logger.Warn("Ingest pipeline did not drain in time")
	}

	if err := app.Store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
