package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/health"
	"github.com/MrWong99/betterspeak/internal/observe"
	resultsmock "github.com/MrWong99/betterspeak/internal/results/mock"
	"github.com/MrWong99/betterspeak/internal/server"
	"github.com/MrWong99/betterspeak/internal/session"
	"github.com/MrWong99/betterspeak/internal/session/mock"
	"github.com/MrWong99/betterspeak/internal/sink"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

type fixture struct {
	ts       *httptest.Server
	bus      *events.Bus
	capture  *mock.Capture
	detector *mock.Detector
	player   *mock.Player
	saver    *mock.Saver
	results  *resultsmock.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		bus:      events.NewBus(),
		capture:  &mock.Capture{},
		detector: &mock.Detector{Result: detect.SessionMetrics{RunID: "run-1", Total: 2}},
		player:   &mock.Player{},
		saver:    &mock.Saver{Location: "/tmp/12-00_01-01-2026.wav"},
		results:  &resultsmock.Store{},
	}
	sess, err := session.New(session.Config{
		Capture:   f.capture,
		Detector:  f.detector,
		Player:    f.player,
		Saver:     f.saver,
		Results:   f.results,
		Publisher: f.bus,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv, err := server.New(server.Config{
		Session: sess,
		Events:  f.bus,
		Health:  health.New(),
		Metrics: metrics,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.bus.Close()
		f.ts.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := server.New(server.Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecordingLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	steps := []struct {
		path       string
		wantStatus int
		wantState  string
	}{
		{"/v1/recording/start", http.StatusOK, "running"},
		{"/v1/recording/start", http.StatusConflict, ""},
		{"/v1/recording/pause", http.StatusOK, "stopped"},
		{"/v1/recording/pause", http.StatusOK, "running"},
		{"/v1/recording/stop", http.StatusOK, "stopped"},
		{"/v1/recording/reset", http.StatusNoContent, ""},
	}
	for _, st := range steps {
		resp, body := f.do(t, http.MethodPost, st.path, "", "")
		if resp.StatusCode != st.wantStatus {
			t.Fatalf("%s: status = %d, want %d (%s)", st.path, resp.StatusCode, st.wantStatus, body)
		}
		if st.wantState != "" {
			got := decode[struct{ State string }](t, body)
			if got.State != st.wantState {
				t.Errorf("%s: state = %q, want %q", st.path, got.State, st.wantState)
			}
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/v1/recording/start", "", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestSetText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCount   int
	}{
		{name: "plain", contentType: "text/plain", body: "the beautiful table", wantStatus: http.StatusOK, wantCount: 6},
		{name: "json", contentType: "application/json", body: `{"text":"hello world"}`, wantStatus: http.StatusOK, wantCount: 3},
		{name: "empty", body: "", wantStatus: http.StatusOK, wantCount: 0},
		{name: "bad json", contentType: "application/json", body: `{"text":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			resp, body := f.do(t, http.MethodPut, "/v1/text", tt.contentType, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[struct{ Syllables int }](t, body)
			if got.Syllables != tt.wantCount {
				t.Errorf("syllables = %d, want %d", got.Syllables, tt.wantCount)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.do(t, http.MethodPut, "/v1/text", "text/plain", "the beautiful table")

	resp, body := f.do(t, http.MethodPost, "/v1/detect", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	m := decode[detect.SessionMetrics](t, body)
	if m.RunID != "run-1" || m.Syllables != 6 || m.Total != 2 {
		t.Errorf("metrics = %+v", m)
	}

	resp, body = f.do(t, http.MethodGet, "/v1/metrics/run-1", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d (%s)", resp.StatusCode, body)
	}
	if got := decode[detect.SessionMetrics](t, body); got.RunID != "run-1" {
		t.Errorf("stored run = %q", got.RunID)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      func(f *fixture)
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "detection already running",
			setup:      func(f *fixture) { f.detector.RunErr = detect.ErrAlreadyRunning },
			method:     http.MethodPost,
			path:       "/v1/detect",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "playback in progress",
			setup:      func(f *fixture) { f.player.PlayErr = sink.ErrAlreadyInProgress },
			method:     http.MethodPost,
			path:       "/v1/playback",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "empty recording",
			setup:      func(f *fixture) { f.saver.SaveErr = sink.ErrEmptyRecording },
			method:     http.MethodPost,
			path:       "/v1/save",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "write failure",
			setup:      func(f *fixture) { f.saver.SaveErr = &sink.IOError{Path: "x.wav", Err: errors.New("disk full")} },
			method:     http.MethodPost,
			path:       "/v1/save",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "device failure",
			setup:      func(f *fixture) { f.capture.StartErr = &audio.DeviceError{Op: "open", Err: errors.New("no device")} },
			method:     http.MethodPost,
			path:       "/v1/recording/start",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unknown run",
			setup:      func(*fixture) {},
			method:     http.MethodGet,
			path:       "/v1/metrics/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad limit",
			setup:      func(*fixture) {},
			method:     http.MethodGet,
			path:       "/v1/metrics/history?limit=-1",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(f)
			resp, body := f.do(t, tt.method, tt.path, "", "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if got := decode[struct{ Error string }](t, body); got.Error == "" {
				t.Error("error body is empty")
			}
		})
	}
}

func TestPlaybackAndSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/v1/playback", "", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("playback status = %d, want 202", resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodPost, "/v1/save", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save status = %d (%s)", resp.StatusCode, body)
	}
	if got := decode[struct{ Location string }](t, body); got.Location != f.saver.Location {
		t.Errorf("location = %q", got.Location)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/metrics/history", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != `{"runs":[]}` {
		t.Errorf("empty history body = %s", body)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_ = f.results.Save(context.Background(), detect.SessionMetrics{RunID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	_, body = f.do(t, http.MethodGet, "/v1/metrics/history?limit=2", "", "")
	got := decode[struct{ Runs []detect.SessionMetrics }](t, body)
	if len(got.Runs) != 2 || got.Runs[0].RunID != "c" || got.Runs[1].RunID != "b" {
		t.Errorf("history = %+v", got.Runs)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.capture.Recorded = 2 * time.Second

	resp, body := f.do(t, http.MethodGet, "/v1/status", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	st := decode[session.Status](t, body)
	if st.Capture != capture.StateStopped.String() || st.Recorded != 2*time.Second {
		t.Errorf("status = %+v", st)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, _ := f.do(t, http.MethodGet, path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func dialEvents(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/events" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	deadline := time.Now().Add(5 * time.Second)
	for f.bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

type wireEvent struct {
	Kind events.Kind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	return decode[wireEvent](t, data)
}

func TestEvents_StreamsBusEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := dialEvents(t, f, "")

	f.do(t, http.MethodPut, "/v1/text", "text/plain", "hello world")

	ev := readEvent(t, conn)
	if ev.Kind != events.KindSyllableCount {
		t.Fatalf("kind = %q, want %q", ev.Kind, events.KindSyllableCount)
	}
	if got := decode[events.SyllableCount](t, ev.Data); got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}
}

func TestEvents_KindFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := dialEvents(t, f, "?kinds=total_count,%20classifier_count")

	f.bus.Publish(events.KindSyllableCount, events.SyllableCount{Count: 1})
	f.bus.Publish(events.KindTotalCount, events.TotalCount{RunID: "r", Total: 4})

	ev := readEvent(t, conn)
	if ev.Kind != events.KindTotalCount {
		t.Fatalf("kind = %q, want %q", ev.Kind, events.KindTotalCount)
	}
	if got := decode[events.TotalCount](t, ev.Data); got.Total != 4 {
		t.Errorf("total = %d, want 4", got.Total)
	}
}

func TestEvents_ClosedBusEndsStream(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := dialEvents(t, f, "")
	f.bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want %v (err %v)", got, websocket.StatusGoingAway, err)
	}
}

func TestEvents_ClientDisconnectUnsubscribes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := dialEvents(t, f, "")
	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(5 * time.Second)
	for f.bus.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after client disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
