// Package onnx implements a [classifier.Backend] that runs exported
// disfluency models with ONNX Runtime.
//
// Each model is expected to take one float32 input of shape [batch, samples]
// and produce one float32 output of shape [batch, 1] holding raw logits.
// The runtime shared library is initialised once per process on the first
// Load; its path comes from [WithLibraryPath] or the platform default.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/betterspeak/pkg/classifier"
)

var (
	_ classifier.Backend = (*Backend)(nil)
	_ classifier.Model   = (*Model)(nil)
)

// ErrRaggedBatch is returned when the chunks of one batch differ in length.
var ErrRaggedBatch = errors.New("onnx: chunks must all have the same length")

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment initialises ONNX Runtime exactly once for the process.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("onnx: initialise runtime: %w", err)
		}
	})
	return envErr
}

// Shutdown tears down the ONNX Runtime environment. Call it once at process
// exit after every model has been closed.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Option configures a [Backend].
type Option func(*Backend)

// WithLibraryPath sets the path of the onnxruntime shared library.
func WithLibraryPath(path string) Option {
	return func(b *Backend) { b.libPath = path }
}

// WithTensorNames overrides the model's input and output tensor names.
// Defaults to "input_values" and "logits".
func WithTensorNames(input, output string) Option {
	return func(b *Backend) {
		if input != "" {
			b.input = input
		}
		if output != "" {
			b.output = output
		}
	}
}

// Backend loads .onnx models.
type Backend struct {
	dir     string
	libPath string
	input   string
	output  string
}

// NewBackend returns a Backend resolving relative resources against dir.
func NewBackend(dir string, opts ...Option) *Backend {
	b := &Backend{dir: dir, input: "input_values", output: "logits"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements [classifier.Backend].
func (b *Backend) Name() string { return "onnx" }

// Load implements [classifier.Backend].
func (b *Backend) Load(_ context.Context, resource string) (classifier.Model, error) {
	path := classifier.ResolveResource(b.dir, resource)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("onnx: stat %q: %w", path, err)
	}
	if err := initEnvironment(b.libPath); err != nil {
		return nil, err
	}
	sess, err := ort.NewDynamicAdvancedSession(path, []string{b.input}, []string{b.output}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session for %q: %w", path, err)
	}
	return &Model{sess: sess}, nil
}

// Model is one loaded ONNX session.
type Model struct {
	mu   sync.Mutex
	sess *ort.DynamicAdvancedSession
}

// Score implements [classifier.Model].
func (m *Model) Score(ctx context.Context, chunks [][]float32) ([]float64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	flat, width, err := Flatten(chunks)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(int64(len(chunks)), int64(width)), flat)
	if err != nil {
		return nil, fmt.Errorf("onnx: input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(len(chunks)), 1))
	if err != nil {
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	defer out.Destroy()

	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return nil, errors.New("onnx: model closed")
	}
	err = m.sess.Run([]ort.Value{in}, []ort.Value{out})
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}

	data := out.GetData()
	logits := make([]float64, len(data))
	for i, v := range data {
		logits[i] = float64(v)
	}
	return logits, nil
}

// Close implements [classifier.Model].
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	err := m.sess.Destroy()
	m.sess = nil
	return err
}

// Flatten packs equally sized chunks row-major into one slice.
func Flatten(chunks [][]float32) ([]float32, int, error) {
	if len(chunks) == 0 {
		return nil, 0, nil
	}
	width := len(chunks[0])
	flat := make([]float32, 0, width*len(chunks))
	for i, c := range chunks {
		if len(c) != width {
			return nil, 0, fmt.Errorf("%w: chunk %d has %d samples, want %d", ErrRaggedBatch, i, len(c), width)
		}
		flat = append(flat, c...)
	}
	return flat, width, nil
}
