// Package record implements the "record" subcommand: the always-on
// capture, indexing and control-surface stack.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/datastore"
	"github.com/retracehq/retrace/internal/httpcontroller"
	"github.com/retracehq/retrace/internal/logging"
	"github.com/retracehq/retrace/internal/observability"
	"github.com/retracehq/retrace/internal/recorder"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long producers get to finish their current
// iteration before the process exits.
const shutdownGrace = 30 * time.Second

// optimizeInterval is how often the database is analyzed and vacuumed.
const optimizeInterval = 24 * time.Hour

// Command creates the record command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Start continuous screen and audio recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(settings)
		},
	}
}

func runRecord(settings *conf.Settings) error {
	log := logging.ForService("main")
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if err := os.MkdirAll(settings.Output.Path, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory %q: %w", settings.Output.Path, err)
	}

	dataStore := datastore.New(settings)
	if dataStore == nil {
		return fmt.Errorf("no datastore configured; enable output.sqlite")
	}
	if err := dataStore.Open(); err != nil {
		return err
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			log.Error("Failed to close datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	visionControl := &atomic.Bool{}
	visionControl.Store(settings.Vision.Enabled)

	pipeline := recorder.New(settings, dataStore, visionControl, metrics, recorder.DefaultDeps(settings))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httpcontroller.New(settings, dataStore, visionControl, pipeline.Supervisor(), metrics)

	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- pipeline.Run(ctx)
	}()

	go func() {
		ticker := time.NewTicker(optimizeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := dataStore.Optimize(ctx); err != nil {
					log.Error("Database optimization failed", "error", err)
				}
			}
		}
	}()

	serverDone := make(chan error, 1)
	if settings.WebServer.Enabled {
		go func() {
			serverDone <- server.Start()
		}()
		if console := logging.Console(); console != nil {
			console.Info("retrace listening", "port", settings.WebServer.Port, "output", settings.Output.Path)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverDone:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if settings.WebServer.Enabled {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
	}

	select {
	case err := <-pipelineDone:
		return err
	case <-shutdownCtx.Done():
		log.Warn("Producers did not stop within the grace period, aborting")
		return nil
	}
}
