package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/betterspeak/internal/app"
	"github.com/MrWong99/betterspeak/internal/config"
	"github.com/MrWong99/betterspeak/internal/resilience"
	"github.com/MrWong99/betterspeak/internal/results"
	"github.com/MrWong99/betterspeak/internal/storage"
	"github.com/MrWong99/betterspeak/pkg/audio/portaudio"
	"github.com/MrWong99/betterspeak/pkg/audio/silence"
	"github.com/MrWong99/betterspeak/pkg/classifier"
	"github.com/MrWong99/betterspeak/pkg/classifier/linear"
	"github.com/MrWong99/betterspeak/pkg/classifier/onnx"
)

// registerBuiltins wires every backend that ships with BetterSpeak into reg.
func registerBuiltins(reg *config.Registry) {
	// ── Audio devices ─────────────────────────────────────────────────────────

	reg.RegisterDevices(config.DevicePortAudio, func(config.AudioConfig) (config.Devices, error) {
		return config.Devices{Capture: portaudio.NewCapture(), Playback: portaudio.NewPlayback()}, nil
	})
	reg.RegisterDevices(config.DeviceSilence, func(config.AudioConfig) (config.Devices, error) {
		return config.Devices{
			Capture:  silence.NewCapture(silence.WithRealtime(true)),
			Playback: silence.NewPlayback(silence.WithRealtime(true)),
		}, nil
	})

	// ── Classifiers ───────────────────────────────────────────────────────────

	reg.RegisterClassifier(config.ClassifierONNX, func(cc config.ClassifiersConfig) (classifier.Backend, error) {
		return onnx.NewBackend(cc.ModelDir, onnx.WithLibraryPath(cc.ONNXLibrary)), nil
	})
	// Linear weights sit next to the ONNX files with a .yaml extension, so
	// both backends share one resource map.
	reg.RegisterClassifier(config.ClassifierLinear, func(cc config.ClassifiersConfig) (classifier.Backend, error) {
		return linear.NewBackend(cc.ModelDir, linear.WithExtension(".yaml")), nil
	})

	// ── Recording storage ─────────────────────────────────────────────────────

	reg.RegisterStorage(config.StorageLocal, func(_ context.Context, sc config.StorageConfig) (storage.FileStore, error) {
		return storage.NewLocal(sc.Dir)
	})
	reg.RegisterStorage(config.StorageS3, func(_ context.Context, sc config.StorageConfig) (storage.FileStore, error) {
		client := storage.NewS3Client(storage.S3Options{
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
		})
		return storage.NewS3(client, sc.S3.Bucket, sc.S3.Prefix), nil
	})

	// ── Results history ───────────────────────────────────────────────────────

	reg.RegisterResults(config.ResultsMemory, func(context.Context, config.ResultsConfig) (results.Store, error) {
		return results.NewMemory(), nil
	})
	reg.RegisterResults(config.ResultsBadger, func(_ context.Context, rc config.ResultsConfig) (results.Store, error) {
		return results.NewBadger(results.BadgerOptions{Dir: rc.BadgerDir, Logger: slog.Default()})
	})
	reg.RegisterResults(config.ResultsPostgres, func(ctx context.Context, rc config.ResultsConfig) (results.Store, error) {
		return results.OpenPostgres(ctx, rc.PostgresDSN)
	})

	for kind, names := range reg.Names() {
		slog.Debug("registered backends", "kind", kind, "names", names)
	}
}

// buildProviders instantiates every backend named in cfg and returns them in
// an [app.Providers] for the application to consume.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	devices, err := reg.CreateDevices(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio devices %q: %w", cfg.Audio.Device, err)
	}
	ps.Devices = devices
	slog.Info("backend created", "kind", "audio", "name", cfg.Audio.Device)

	backend, err := buildClassifier(cfg.Classifiers, cfg.Detection, reg)
	if err != nil {
		return nil, err
	}
	ps.Classifier = backend
	slog.Info("backend created", "kind", "classifier", "name", backend.Name(), "model_dir", cfg.Classifiers.ModelDir)

	store, err := reg.CreateStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage %q: %w", cfg.Storage.Backend, err)
	}
	ps.Storage = store
	slog.Info("backend created", "kind", "storage", "name", cfg.Storage.Backend)

	res, err := reg.CreateResults(ctx, cfg.Results)
	if err != nil {
		return nil, fmt.Errorf("create results store %q: %w", cfg.Results.Backend, err)
	}
	ps.Results = res
	slog.Info("backend created", "kind", "results", "name", cfg.Results.Backend)

	return ps, nil
}

// buildClassifier creates the configured backend and, when fallback is on,
// chains the linear backend behind it.
func buildClassifier(cc config.ClassifiersConfig, dc config.DetectionConfig, reg *config.Registry) (classifier.Backend, error) {
	primary, err := reg.CreateClassifier(cc)
	if err != nil {
		return nil, fmt.Errorf("create classifier %q: %w", cc.Backend, err)
	}
	if !cc.Fallback || cc.Backend == config.ClassifierLinear {
		return primary, nil
	}

	secondary, err := reg.CreateClassifierNamed(config.ClassifierLinear, cc)
	if errors.Is(err, config.ErrBackendNotRegistered) {
		slog.Warn("fallback classifier not registered; continuing without it", "name", config.ClassifierLinear)
		return primary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create fallback classifier: %w", err)
	}

	fb := resilience.NewBackendFallback(primary, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  dc.BreakerMaxFailures,
			ResetTimeout: dc.BreakerResetTimeout,
		},
	})
	fb.AddFallback(secondary)
	return fb, nil
}
