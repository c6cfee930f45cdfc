package observe_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/betterspeak/internal/observe"
)

// installTracer routes the global tracer into an in-memory exporter for the
// duration of the test. Tests using it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_NestsJobUnderRun(t *testing.T) {
	exp := installTracer(t)

	ctx, run := observe.StartSpan(context.Background(), "detect.run")
	_, job := observe.StartSpan(ctx, "detect.job")
	job.End()
	run.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	runSpan, jobSpan := byName["detect.run"], byName["detect.job"]
	if jobSpan.Parent.SpanID() != runSpan.SpanContext.SpanID() {
		t.Fatal("detect.job is not a child of detect.run")
	}
	if got := runSpan.InstrumentationScope.Name; got != "github.com/MrWong99/betterspeak" {
		t.Errorf("scope = %q", got)
	}
}

func TestCorrelationID(t *testing.T) {
	installTracer(t)

	if got := observe.CorrelationID(context.Background()); got != "" {
		t.Fatalf("CorrelationID without span = %q, want empty", got)
	}

	ctx, span := observe.StartSpan(context.Background(), "detect.run")
	defer span.End()
	cid := observe.CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	if _, err := hex.DecodeString(cid); err != nil {
		t.Fatalf("correlation ID %q is not hex: %v", cid, err)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{name: "inside a detection run", withSpan: true, wantTrace: true},
		{name: "outside any span"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.withSpan {
				c, s := observe.StartSpan(ctx, "detect.run")
				defer s.End()
				ctx = c
			}

			observe.Logger(ctx).Info("classifier job failed")

			out := buf.String()
			if got := strings.Contains(out, "trace_id="); got != tt.wantTrace {
				t.Errorf("trace_id present = %v, want %v: %s", got, tt.wantTrace, out)
			}
			if got := strings.Contains(out, "span_id="); got != tt.wantTrace {
				t.Errorf("span_id present = %v, want %v: %s", got, tt.wantTrace, out)
			}
		})
	}
}
