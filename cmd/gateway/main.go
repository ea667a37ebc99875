// Command gateway runs the BFF gateway: admission control, per-downstream
// resilience policies, batch read-through caching, payload enrichment and
// fan-out aggregation in front of the configured backend services.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	observability.SetGlobalLogger(logger)

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(*configPath, app.reload,
		config.WithWatcherLogger(logger),
	)
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", observability.Error(err))
		}
		defer watcher.Stop() //nolint:errcheck
	}

	if err := app.run(ctx); err != nil {
		logger.Fatal("gateway terminated", observability.Error(err))
	}
}
