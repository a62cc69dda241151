package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/sotto-ai/sotto/internal/app"
	"github.com/sotto-ai/sotto/internal/config"
	"github.com/sotto-ai/sotto/internal/gateway"
	"github.com/sotto-ai/sotto/internal/observe"
	"github.com/sotto-ai/sotto/pkg/client"
	llmmock "github.com/sotto-ai/sotto/pkg/provider/llm/mock"
	sttmock "github.com/sotto-ai/sotto/pkg/provider/stt/mock"
	ttsmock "github.com/sotto-ai/sotto/pkg/provider/tts/mock"
	vadmock "github.com/sotto-ai/sotto/pkg/provider/vad/mock"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func discardLogs() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockProviders() gateway.Providers {
	return gateway.Providers{
		STT: &sttmock.Provider{},
		LLM: &llmmock.Provider{},
		TTS: &ttsmock.Provider{},
		VAD: &vadmock.Engine{},
	}
}

// newApp builds an App with test doubles for everything external and
// registers its teardown.
func newApp(t *testing.T, cfg *config.Config, providers gateway.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithLogger(discardLogs()),
		app.WithMetrics(observe.DefaultMetrics()),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a
}

// serve exposes the app's handler behind httptest and returns the base URL.
func serve(t *testing.T, a *app.App) string {
	t.Helper()
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// dial connects a client and registers its teardown.
func dial(t *testing.T, base, model string, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), base, model, opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// sessionCreated dials and returns the session.created resource.
func sessionCreated(t *testing.T, base string, opts ...client.Option) *realtime.Session {
	t.Helper()
	c := dial(t, base, "voice-1", opts...)
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatalf("event stream closed early: err=%v", c.Err())
		}
		created, isCreated := ev.(*realtime.SessionCreatedEvent)
		if !isCreated {
			t.Fatalf("want session.created first, got %s", ev.ServerEventType())
		}
		return created.Session
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session.created")
	}
	return nil
}

// waitClosed drains the client until its event stream ends.
func waitClosed(t *testing.T, c *client.Client) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("connection did not close")
		}
	}
}

// writeConfig writes a config file and returns its path.
func writeConfig(t *testing.T, dir, yaml string) string {
	t.Helper()
	path := filepath.Join(dir, "sotto.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ─── TestApp_WiresConfigIntoSessions ─────────────────────────────────────────

// TestApp_WiresConfigIntoSessions verifies that New assembles a serving
// stack from plain config: the session seed reaches session.created and the
// operational routes answer.
func TestApp_WiresConfigIntoSessions(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0"},
		Defaults: config.SessionDefaultsConfig{
			Voice:              "cedar",
			Instructions:       "Answer briefly.",
			TranscriptionModel: "whisper-1",
			Temperature:        0.6,
		},
	}
	a := newApp(t, cfg, mockProviders())
	base := serve(t, a)

	sess := sessionCreated(t, base)
	if sess.Voice != "cedar" || sess.Instructions != "Answer briefly." || sess.Temperature != 0.6 {
		t.Errorf("session seed not applied: %+v", sess)
	}
	if sess.InputAudioTranscription == nil || sess.InputAudioTranscription.Model != "whisper-1" {
		t.Errorf("transcription model not applied: %+v", sess.InputAudioTranscription)
	}

	for _, route := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(base + route)
		if err != nil {
			t.Fatalf("GET %s: %v", route, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: want 200, got %d", route, resp.StatusCode)
		}
	}
}

// ─── TestApp_StaticKeyAuth ───────────────────────────────────────────────────

// TestApp_StaticKeyAuth verifies that auth.api_keys becomes a working
// static-key authenticator: a wrong bearer key is rejected with 4401 and the
// right one connects.
func TestApp_StaticKeyAuth(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0"},
		Auth:   config.AuthConfig{APIKeys: []string{"sk-test-1"}},
	}
	a := newApp(t, cfg, mockProviders())
	base := serve(t, a)

	bad := dial(t, base, "voice-1", client.WithAPIKey("sk-wrong"))
	waitClosed(t, bad)
	if got := bad.CloseStatus(); got != websocket.StatusCode(realtime.CloseUnauthorized) {
		t.Errorf("close status = %d, want %d", got, realtime.CloseUnauthorized)
	}

	sess := sessionCreated(t, base, client.WithAPIKey("sk-test-1"))
	if sess.ID == "" {
		t.Error("authenticated dial did not open a session")
	}
}

// ─── TestApp_ReadyzReportsMissingProviders ───────────────────────────────────

// TestApp_ReadyzReportsMissingProviders verifies the providers readiness
// check: with no transcription or completion backend the gateway cannot
// serve anything useful, so /readyz fails.
func TestApp_ReadyzReportsMissingProviders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Server: config.ServerConfig{ListenAddr: ":0"}}
	a := newApp(t, cfg, gateway.Providers{})
	base := serve(t, a)

	resp, err := http.Get(base + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("want 503 from /readyz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200 from /healthz, got %d", resp.StatusCode)
	}
}

// ─── TestApp_HotReload ───────────────────────────────────────────────────────

const reloadConfigV1 = `
server:
  listen_addr: ":0"
  log_level: info
session_defaults:
  voice: cedar
`

const reloadConfigV2 = `
server:
  listen_addr: ":0"
  log_level: debug
session_defaults:
  voice: marin
transcript:
  vocabulary:
    - Sotto
`

// TestApp_HotReload verifies the config watcher path end to end: rewriting
// the file changes the session seed for new sessions and adjusts the log
// level var, without restarting anything.
func TestApp_HotReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), reloadConfigV1)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	level := new(slog.LevelVar)
	a := newApp(t, cfg, mockProviders(),
		app.WithConfigFile(path),
		app.WithReloadInterval(20*time.Millisecond),
		app.WithLogLevel(level),
	)
	base := serve(t, a)

	if sess := sessionCreated(t, base); sess.Voice != "cedar" {
		t.Fatalf("want initial voice cedar, got %q", sess.Voice)
	}

	// Leave a gap so the rewrite gets a distinct mtime.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(reloadConfigV2), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if sess := sessionCreated(t, base); sess.Voice == "marin" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("new sessions never picked up the reloaded voice")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("want log level debug after reload, got %s", got)
	}
}

// ─── TestApp_RunAndShutdown ──────────────────────────────────────────────────

// TestApp_RunAndShutdown verifies the lifecycle: Run serves on a real
// listener until the context ends, and Shutdown is idempotent.
func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"}}
	a := newApp(t, cfg, mockProviders())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment to bind, then stop serving.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if n := a.ActiveSessions(); n != 0 {
		t.Errorf("want no active sessions after shutdown, got %d", n)
	}
}
