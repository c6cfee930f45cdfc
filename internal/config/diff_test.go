package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/betterspeak/internal/config"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.HotReloadable() {
		t.Error("expected no hot-reloadable changes for identical configs")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart-required sections, got %v", d.RestartRequired)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
				}
			},
		},
		{
			name:   "job timeout",
			mutate: func(c *config.Config) { c.Detection.JobTimeout = 5 * time.Second },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.JobTimeoutChanged || d.NewJobTimeout != 5*time.Second {
					t.Errorf("job timeout diff = %v/%s", d.JobTimeoutChanged, d.NewJobTimeout)
				}
			},
		},
		{
			name:   "waveform window",
			mutate: func(c *config.Config) { c.Audio.WaveformSeconds = 2.5 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.WaveformChanged || d.NewWaveformWindow != 2500*time.Millisecond {
					t.Errorf("waveform diff = %v/%s", d.WaveformChanged, d.NewWaveformWindow)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !d.HotReloadable() {
				t.Fatal("expected a hot-reloadable change")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("expected no restart-required sections, got %v", d.RestartRequired)
			}
			tt.check(t, d)
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{name: "listen addr", mutate: func(c *config.Config) { c.Server.ListenAddr = ":9090" }, section: "server"},
		{name: "tls", mutate: func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} }, section: "server"},
		{name: "sample rate", mutate: func(c *config.Config) { c.Audio.SampleRate = 44100 }, section: "audio"},
		{name: "backend", mutate: func(c *config.Config) { c.Classifiers.Backend = config.ClassifierLinear }, section: "classifiers"},
		{name: "resource", mutate: func(c *config.Config) { c.Classifiers.Resources[classifier.Repetition] = "rep-v2.onnx" }, section: "classifiers"},
		{name: "breaker", mutate: func(c *config.Config) { c.Detection.BreakerMaxFailures = 10 }, section: "detection"},
		{name: "storage", mutate: func(c *config.Config) { c.Storage.S3.Bucket = "recordings" }, section: "storage"},
		{name: "results", mutate: func(c *config.Config) { c.Results.Backend = config.ResultsBadger }, section: "results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !slices.Equal(d.RestartRequired, []string{tt.section}) {
				t.Errorf("RestartRequired = %v, want [%s]", d.RestartRequired, tt.section)
			}
			if d.HotReloadable() {
				t.Error("expected no hot-reloadable change")
			}
		})
	}
}
