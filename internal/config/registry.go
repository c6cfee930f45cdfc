package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/betterspeak/internal/results"
	"github.com/MrWong99/betterspeak/internal/storage"
	"github.com/MrWong99/betterspeak/pkg/audio"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Devices is a capture and playback device pair opened by one backend.
type Devices struct {
	Capture  audio.CaptureDevice
	Playback audio.PlaybackDevice
}

// Registry maps backend names to their constructor functions for each
// pluggable component. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]func(AudioConfig) (Devices, error)
	classifier map[string]func(ClassifiersConfig) (classifier.Backend, error)
	storage    map[string]func(context.Context, StorageConfig) (storage.FileStore, error)
	results    map[string]func(context.Context, ResultsConfig) (results.Store, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[string]func(AudioConfig) (Devices, error)),
		classifier: make(map[string]func(ClassifiersConfig) (classifier.Backend, error)),
		storage:    make(map[string]func(context.Context, StorageConfig) (storage.FileStore, error)),
		results:    make(map[string]func(context.Context, ResultsConfig) (results.Store, error)),
	}
}

// RegisterDevices registers an audio device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevices(name string, factory func(AudioConfig) (Devices, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// RegisterClassifier registers a classifier backend factory under name.
func (r *Registry) RegisterClassifier(name string, factory func(ClassifiersConfig) (classifier.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier[name] = factory
}

// RegisterStorage registers a recording store factory under name.
func (r *Registry) RegisterStorage(name string, factory func(context.Context, StorageConfig) (storage.FileStore, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[name] = factory
}

// RegisterResults registers a results store factory under name.
func (r *Registry) RegisterResults(name string, factory func(context.Context, ResultsConfig) (results.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = factory
}

// CreateDevices opens the devices registered under cfg.Device.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateDevices(cfg AudioConfig) (Devices, error) {
	r.mu.RLock()
	factory, ok := r.devices[cfg.Device]
	r.mu.RUnlock()
	if !ok {
		return Devices{}, fmt.Errorf("%w: audio/%q", ErrBackendNotRegistered, cfg.Device)
	}
	return factory(cfg)
}

// CreateClassifier instantiates the classifier backend registered under
// cfg.Backend.
func (r *Registry) CreateClassifier(cfg ClassifiersConfig) (classifier.Backend, error) {
	return r.createClassifier(cfg.Backend, cfg)
}

// CreateClassifierNamed instantiates the classifier backend registered under
// name with cfg. It builds fallback chains from one config.
func (r *Registry) CreateClassifierNamed(name string, cfg ClassifiersConfig) (classifier.Backend, error) {
	return r.createClassifier(name, cfg)
}

func (r *Registry) createClassifier(name string, cfg ClassifiersConfig) (classifier.Backend, error) {
	r.mu.RLock()
	factory, ok := r.classifier[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: classifier/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}

// CreateStorage instantiates the recording store registered under
// cfg.Backend.
func (r *Registry) CreateStorage(ctx context.Context, cfg StorageConfig) (storage.FileStore, error) {
	r.mu.RLock()
	factory, ok := r.storage[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: storage/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// CreateResults instantiates the results store registered under
// cfg.Backend.
func (r *Registry) CreateResults(ctx context.Context, cfg ResultsConfig) (results.Store, error) {
	r.mu.RLock()
	factory, ok := r.results[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: results/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// Names returns the registered backend names per component kind.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"audio":      sortedKeys(r.devices),
		"classifier": sortedKeys(r.classifier),
		"storage":    sortedKeys(r.storage),
		"results":    sortedKeys(r.results),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
