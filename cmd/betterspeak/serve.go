package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/betterspeak/internal/app"
	"github.com/MrWong99/betterspeak/internal/config"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/pkg/classifier/onnx"
)

// gracePeriod bounds the shutdown of a signalled process.
const gracePeriod = 15 * time.Second

func newServeCmd() *cobra.Command {
	var reloadInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Long: `Run the HTTP API that drives recording, detection, playback and saving,
and stream live events to WebSocket clients at /v1/events.

The config file is watched; log level, job timeout and waveform window
changes apply without restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, reloadInterval)
		},
	}
	cmd.Flags().DurationVar(&reloadInterval, "reload-interval", 5*time.Second, "config file polling interval (0 disables hot reload)")
	return cmd
}

func runServe(cmd *cobra.Command, reloadInterval time.Duration) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, level := setupLogger(cfg)
	slog.Info("betterspeak starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := newApp(ctx, cfg, app.WithLogger(logger), app.WithLevel(level))
	if err != nil {
		return err
	}

	if path != "" && reloadInterval > 0 {
		w, err := config.NewWatcher(path, func(old, new *config.Config) {
			application.ApplyConfig(config.Diff(old, new))
		}, config.WithInterval(reloadInterval), config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	go func() {
		if err := application.Warm(ctx); err != nil {
			slog.Warn("detection will retry failed models on demand")
		}
	}()

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()
	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return runErr
}

// newApp builds the registry, the configured backends and the application.
func newApp(ctx context.Context, cfg *config.Config, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltins(reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		_ = providers.Results.Close()
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	application.AddCloser(onnx.Shutdown)
	return application, nil
}

// stderrIsTerminal reports whether progress output can be redrawn in place.
func stderrIsTerminal() bool {
	fi, err := os.Stderr.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
