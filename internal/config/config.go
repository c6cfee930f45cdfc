// Package config provides the configuration schema, loader and backend
// registry for the betterspeak server and CLI.
package config

import (
	"time"

	"github.com/MrWong99/betterspeak/pkg/audio"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend names understood by the default registry.
const (
	DevicePortAudio = "portaudio"
	DeviceSilence   = "silence"

	ClassifierONNX   = "onnx"
	ClassifierLinear = "linear"

	StorageLocal = "local"
	StorageS3    = "s3"

	ResultsMemory   = "memory"
	ResultsBadger   = "badger"
	ResultsPostgres = "postgres"
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]; fields missing from the file
// keep the values of [Default].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Classifiers ClassifiersConfig `yaml:"classifiers"`
	Detection   DetectionConfig   `yaml:"detection"`
	Storage     StorageConfig     `yaml:"storage"`
	Results     ResultsConfig     `yaml:"results"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig describes the capture stream.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FramesPerBuffer is the number of samples per captured frame.
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	// WaveformSeconds is the length of the live waveform window.
	// Hot-reloadable.
	WaveformSeconds float64 `yaml:"waveform_seconds"`

	// Device selects the registered capture and playback backend.
	Device string `yaml:"device"`
}

// Format returns the audio format described by c.
func (c AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: c.SampleRate, FramesPerBuffer: c.FramesPerBuffer}
}

// WaveformWindow returns WaveformSeconds as a duration.
func (c AudioConfig) WaveformWindow() time.Duration {
	return seconds(c.WaveformSeconds)
}

// ClassifiersConfig selects the model backend and the weights per type.
type ClassifiersConfig struct {
	// Backend selects the registered classifier backend.
	Backend string `yaml:"backend"`

	// Fallback chains the linear backend behind Backend, so a missing or
	// broken ONNX model degrades to the linear one.
	Fallback bool `yaml:"fallback"`

	// ModelDir is the directory relative resources are resolved against.
	ModelDir string `yaml:"model_dir"`

	// ChunkSeconds is the duration of one classifier input chunk.
	ChunkSeconds float64 `yaml:"chunk_seconds"`

	// ModelSampleRate is the sample rate the models were trained at.
	ModelSampleRate int `yaml:"model_sample_rate"`

	// ONNXLibrary is the path to the onnxruntime shared library. Empty uses
	// the platform default.
	ONNXLibrary string `yaml:"onnx_library"`

	// Resources maps each disfluency type to its weights.
	Resources classifier.ResourceMap `yaml:"resources"`
}

// ChunkDuration returns ChunkSeconds as a duration.
func (c ClassifiersConfig) ChunkDuration() time.Duration {
	return seconds(c.ChunkSeconds)
}

// DetectionConfig tunes the detection orchestrator.
type DetectionConfig struct {
	// JobTimeout bounds each classifier job. Hot-reloadable.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// BreakerMaxFailures is the number of consecutive failed jobs of one type
	// that opens its circuit breaker.
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerResetTimeout is how long an open breaker waits before letting a
	// probe job through.
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout"`
}

// StorageConfig selects where saved recordings go.
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config addresses an S3 bucket or S3-compatible object store.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Endpoint overrides the AWS endpoint (e.g., a MinIO URL).
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials. Use
	// ${VAR} references to keep them out of the file.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ResultsConfig selects where detection results are kept.
type ResultsConfig struct {
	Backend     string `yaml:"backend"`
	BadgerDir   string `yaml:"badger_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the configuration used for fields absent from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FramesPerBuffer: 1024,
			WaveformSeconds: 5,
			Device:          DevicePortAudio,
		},
		Classifiers: ClassifiersConfig{
			Backend:         ClassifierONNX,
			ModelDir:        "./models",
			ChunkSeconds:    3,
			ModelSampleRate: 16000,
			Resources: classifier.ResourceMap{
				classifier.Interjection: "interjection.onnx",
				classifier.Prolongation: "prolongation.onnx",
				classifier.Repetition:   "repetition.onnx",
			},
		},
		Detection: DetectionConfig{
			JobTimeout:          60 * time.Second,
			BreakerMaxFailures:  3,
			BreakerResetTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     "./saved_recordings",
		},
		Results: ResultsConfig{
			Backend: ResultsMemory,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
