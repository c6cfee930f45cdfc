package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/betterspeak/pkg/classifier"
)

var _ classifier.Backend = (*BackendFallback)(nil)

// BackendFallback is a [classifier.Backend] that loads each model from the
// first healthy backend in a [FallbackGroup]. It lets the onnx backend fall
// back to the pure-Go linear backend when the native runtime is missing.
type BackendFallback struct {
	group *FallbackGroup[classifier.Backend]
}

// NewBackendFallback creates a BackendFallback with primary as the preferred
// backend.
func NewBackendFallback(primary classifier.Backend, cfg FallbackConfig) *BackendFallback {
	return &BackendFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
	}
}

// AddFallback registers another backend, tried after those already added.
func (f *BackendFallback) AddFallback(b classifier.Backend) {
	f.group.AddFallback(b.Name(), b)
}

// Name implements [classifier.Backend]. It joins the entry names with "+".
func (f *BackendFallback) Name() string {
	return strings.Join(f.group.Names(), "+")
}

// Load implements [classifier.Backend].
func (f *BackendFallback) Load(ctx context.Context, resource string) (classifier.Model, error) {
	return ExecuteWithResult(f.group, func(b classifier.Backend) (classifier.Model, error) {
		return b.Load(ctx, resource)
	})
}
