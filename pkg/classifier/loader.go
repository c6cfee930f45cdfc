package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ModelSource hands out loaded models by type. [Loader] is the production
// implementation.
type ModelSource interface {
	Model(ctx context.Context, t Type) (Model, error)
}

var _ ModelSource = (*Loader)(nil)

var errNoResource = errors.New("no resource configured")

// Loader lazily opens one model per type and caches it until Close.
//
// Concurrent first requests for the same type share a single load. A failed
// load is not cached, so a later request retries it.
type Loader struct {
	backend   Backend
	resources ResourceMap
	logger    *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	models map[Type]Model
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithLogger sets the logger used for load events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader returns a Loader opening models through backend. The resource
// map is copied.
func NewLoader(backend Backend, resources ResourceMap, opts ...LoaderOption) *Loader {
	res := make(ResourceMap, len(resources))
	for t, r := range resources {
		res[t] = r
	}
	l := &Loader{
		backend:   backend,
		resources: res,
		logger:    slog.Default(),
		models:    make(map[Type]Model),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Backend returns the name of the backend in use.
func (l *Loader) Backend() string { return l.backend.Name() }

// Resource returns the resource configured for t.
func (l *Loader) Resource(t Type) string { return l.resources[t] }

// Model returns the cached model for t, loading it on first use. Failures are
// returned as *[ModelLoadError].
func (l *Loader) Model(ctx context.Context, t Type) (Model, error) {
	l.mu.RLock()
	m, ok := l.models[t]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	resource := l.resources[t]
	if resource == "" {
		return nil, &ModelLoadError{Type: t, Err: errNoResource}
	}

	// The shared load outlives the caller that started it; each caller still
	// gives up when its own ctx ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(string(t), func() (any, error) {
		l.mu.RLock()
		m, ok := l.models[t]
		l.mu.RUnlock()
		if ok {
			return m, nil
		}

		l.logger.Info("loading classifier model", "type", t, "backend", l.backend.Name(), "resource", resource)
		m, err := l.backend.Load(loadCtx, resource)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.models[t] = m
		l.mu.Unlock()
		return m, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &ModelLoadError{Type: t, Resource: resource, Err: ctx.Err()}
	}
	if res.Err != nil {
		var mle *ModelLoadError
		if errors.As(res.Err, &mle) {
			return nil, res.Err
		}
		return nil, &ModelLoadError{Type: t, Resource: resource, Err: res.Err}
	}
	return res.Val.(Model), nil
}

// Warm loads every configured model up front and returns the joined errors
// of those that failed.
func (l *Loader) Warm(ctx context.Context) error {
	var errs []error
	for _, t := range Types {
		if _, ok := l.resources[t]; !ok {
			continue
		}
		if _, err := l.Model(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loaded reports whether the model for t is cached.
func (l *Loader) Loaded(t Type) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.models[t]
	return ok
}

// Close releases every cached model. The Loader may be reused afterwards; the
// next request reloads from scratch.
func (l *Loader) Close() error {
	l.mu.Lock()
	models := l.models
	l.models = make(map[Type]Model)
	l.mu.Unlock()

	var errs []error
	for t, m := range models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("classifier: close %s model: %w", t, err))
		}
	}
	return errors.Join(errs...)
}
