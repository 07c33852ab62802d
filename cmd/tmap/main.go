package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/tmap/internal/app"
	"github.com/lcalzada-xor/tmap/internal/config"
	"github.com/lcalzada-xor/tmap/internal/telemetry"
)

func main() {
	// load config
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	// Setup Structured Logging
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize Tracing; spans are only sampled and printed in debug mode.
	var spanOut io.Writer = io.Discard
	traceOpts := []telemetry.TracerOption{
		telemetry.WithAttributes(attribute.String("tmap.db.driver", cfg.DBDriver)),
	}
	if cfg.Debug {
		spanOut = os.Stderr
	} else {
		traceOpts = append(traceOpts, telemetry.WithSampleRatio(0))
	}
	shutdownTracer, err := telemetry.InitTracer(spanOut, traceOpts...)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Initialize Application
	application, err := app.New(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("TMAP Starting...", "addr", cfg.Addr, "interval", cfg.BroadcastInterval)

	if err := application.Run(ctx); err != nil {
		slog.Error("Application error", "error", err)
		cancel()
	}
}
