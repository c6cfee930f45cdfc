package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the backend names per kind that ship with
// betterspeak. Used by [Validate] to reject unknown names.
var ValidBackendNames = map[string][]string{
	"audio.device":        {DevicePortAudio, DeviceSilence},
	"classifiers.backend": {ClassifierONNX, ClassifierLinear},
	"storage.backend":     {StorageLocal, StorageS3},
	"results.backend":     {ResultsMemory, ResultsBadger, ResultsPostgres},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A .env file next to the config file and one in the working
// directory are loaded into the environment first; variables already set
// take precedence.
func Load(path string) (*Config, error) {
	LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads each existing file into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn("config: failed to load env file", "path", abs, "err", err)
			}
			continue
		}
		slog.Debug("config: loaded env file", "path", abs)
	}
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. ${VAR} references are expanded from the environment
// before decoding. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found and logs
// warnings for settings that work but are probably unintended.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}
	if cfg.Audio.WaveformSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.waveform_seconds must be positive, got %g", cfg.Audio.WaveformSeconds))
	}
	errs = appendBackendErr(errs, "audio.device", cfg.Audio.Device)

	// Classifiers
	c := cfg.Classifiers
	errs = appendBackendErr(errs, "classifiers.backend", c.Backend)
	if c.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("classifiers.chunk_seconds must be positive, got %g", c.ChunkSeconds))
	}
	if c.ModelSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("classifiers.model_sample_rate must be positive, got %d", c.ModelSampleRate))
	}
	if err := c.Resources.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classifiers.resources: %w", err))
	}
	if c.Fallback && c.Backend == ClassifierLinear {
		slog.Warn("classifiers.fallback has no effect when the backend is already linear")
	}
	if c.ModelDir != "" {
		if _, err := os.Stat(c.ModelDir); err != nil {
			slog.Warn("classifiers.model_dir is not accessible; model loads will fail", "dir", c.ModelDir, "err", err)
		}
	}
	if c.ModelSampleRate > 0 && c.ChunkSeconds > 0 && cfg.Audio.SampleRate > 0 &&
		c.ChunkSeconds*float64(cfg.Audio.SampleRate) < float64(cfg.Audio.FramesPerBuffer) {
		slog.Warn("classifiers.chunk_seconds is shorter than one capture frame",
			"chunk_seconds", c.ChunkSeconds,
			"frames_per_buffer", cfg.Audio.FramesPerBuffer,
		)
	}

	// Detection
	if cfg.Detection.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("detection.job_timeout must be positive, got %s", cfg.Detection.JobTimeout))
	}
	if cfg.Detection.BreakerMaxFailures < 1 {
		errs = append(errs, fmt.Errorf("detection.breaker_max_failures must be at least 1, got %d", cfg.Detection.BreakerMaxFailures))
	}
	if cfg.Detection.BreakerResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("detection.breaker_reset_timeout must be positive, got %s", cfg.Detection.BreakerResetTimeout))
	}

	// Storage
	errs = appendBackendErr(errs, "storage.backend", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case StorageLocal:
		if cfg.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the local backend"))
		}
	case StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
		if (cfg.Storage.S3.AccessKeyID == "") != (cfg.Storage.S3.SecretAccessKey == "") {
			errs = append(errs, errors.New("storage.s3 needs both access_key_id and secret_access_key, or neither"))
		}
		if cfg.Storage.S3.Region == "" && cfg.Storage.S3.Endpoint == "" {
			slog.Warn("storage.s3.region is empty; requests may be rejected")
		}
	}

	// Results
	errs = appendBackendErr(errs, "results.backend", cfg.Results.Backend)
	switch cfg.Results.Backend {
	case ResultsBadger:
		if cfg.Results.BadgerDir == "" {
			errs = append(errs, errors.New("results.badger_dir is required for the badger backend"))
		}
	case ResultsPostgres:
		if cfg.Results.PostgresDSN == "" {
			errs = append(errs, errors.New("results.postgres_dsn is required for the postgres backend"))
		}
	case ResultsMemory:
		slog.Debug("results.backend is memory; detection history is lost on restart")
	}

	return errors.Join(errs...)
}

// appendBackendErr appends an error when name is not a known backend of kind.
func appendBackendErr(errs []error, kind, name string) []error {
	known := ValidBackendNames[kind]
	if slices.Contains(known, name) {
		return errs
	}
	return append(errs, fmt.Errorf("%s %q is invalid; valid values: %s", kind, name, strings.Join(known, ", ")))
}
