// Package linear implements a pure-Go logistic classifier backend.
//
// A linear model is a YAML file holding a bias and one weight per acoustic
// feature. The logit of a chunk is the bias plus the weighted sum of the
// chunk's features (see [Extract]). It needs no native runtime, so it serves
// as the fallback when ONNX Runtime is unavailable and as a deterministic
// model in tests.
//
// Example weights file:
//
//	bias: -4.0
//	frame_ms: 25
//	weights:
//	  rms: 6.5
//	  peak: 0.8
//	  zcr: -1.2
//	  energy_var: 14.0
package linear

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/betterspeak/pkg/classifier"
)

var (
	_ classifier.Backend = (*Backend)(nil)
	_ classifier.Model   = (*Model)(nil)
)

// Weights is the on-disk form of a linear model.
type Weights struct {
	Bias float64 `yaml:"bias"`

	// FrameMs is the analysis frame used for the energy_var feature.
	// Defaults to 25ms.
	FrameMs int `yaml:"frame_ms"`

	// SampleRate of the chunks the model is applied to. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Weights maps feature names to coefficients. Unknown names are
	// rejected at load time.
	Weights map[string]float64 `yaml:"weights"`
}

// Model scores chunks with fixed logistic-regression weights.
type Model struct {
	w Weights
}

// New returns a Model with the given weights after validating them.
func New(w Weights) (*Model, error) {
	if w.FrameMs == 0 {
		w.FrameMs = 25
	}
	if w.SampleRate == 0 {
		w.SampleRate = 16000
	}
	if w.FrameMs < 0 || w.SampleRate < 0 {
		return nil, fmt.Errorf("linear: frame_ms and sample_rate must be positive")
	}
	for name := range w.Weights {
		if !isFeature(name) {
			return nil, fmt.Errorf("linear: unknown feature %q; valid features: %v", name, FeatureNames)
		}
	}
	return &Model{w: w}, nil
}

// Decode reads YAML weights from r.
func Decode(r io.Reader) (*Model, error) {
	var w Weights
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("linear: decode weights: %w", err)
	}
	return New(w)
}

// Score implements [classifier.Model].
func (m *Model) Score(ctx context.Context, chunks [][]float32) ([]float64, error) {
	frame := m.w.SampleRate * m.w.FrameMs / 1000
	out := make([]float64, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := Extract(c, frame)
		logit := m.w.Bias
		// Fixed feature order keeps the float sum identical across calls.
		for _, name := range FeatureNames {
			if w, ok := m.w.Weights[name]; ok {
				logit += w * f.Value(name)
			}
		}
		out[i] = logit
	}
	return out, nil
}

// Close implements [classifier.Model].
func (m *Model) Close() error { return nil }

// Backend loads linear models from YAML files.
type Backend struct {
	dir string
	ext string
}

// Option configures a [Backend].
type Option func(*Backend)

// WithExtension makes Load replace the resource's extension with ext before
// opening it. This lets a linear backend share a resource map written for
// another backend: "interjection.onnx" becomes "interjection.yaml".
func WithExtension(ext string) Option {
	return func(b *Backend) { b.ext = ext }
}

// NewBackend returns a Backend resolving relative resources against dir.
func NewBackend(dir string, opts ...Option) *Backend {
	b := &Backend{dir: dir}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements [classifier.Backend].
func (b *Backend) Name() string { return "linear" }

// Load implements [classifier.Backend].
func (b *Backend) Load(_ context.Context, resource string) (classifier.Model, error) {
	if b.ext != "" {
		resource = strings.TrimSuffix(resource, filepath.Ext(resource)) + b.ext
	}
	path := classifier.ResolveResource(b.dir, resource)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("linear: open %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
