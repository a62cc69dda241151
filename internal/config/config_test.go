package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sotto-ai/sotto/internal/config"
	"github.com/sotto-ai/sotto/pkg/provider/llm"
	"github.com/sotto-ai/sotto/pkg/provider/stt"
	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/provider/vad"
	"github.com/sotto-ai/sotto/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  max_sessions: 64
  session_idle_timeout: 5m

auth:
  api_keys:
    - sk-sotto-test

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    fallback:
      name: ollama
      base_url: http://localhost:11434
      model: llama3.1
    circuit_breaker:
      failure_threshold: 3
      cooldown: 30s
      half_open_probes: 2
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  tts:
    name: elevenlabs
    api_key: el-test
  vad:
    name: energy
    options:
      threshold: 0.5

session_defaults:
  voice: cedar
  instructions: You are a helpful voice assistant.
  transcription_model: whisper-1
  temperature: 0.7

transcript:
  vocabulary:
    - Sotto
    - Kubernetes
`

// ── YAML loading ─────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Server.MaxSessions != 64 {
		t.Errorf("server.max_sessions: got %d, want 64", cfg.Server.MaxSessions)
	}
	if cfg.Server.SessionIdleTimeout.Std() != 5*time.Minute {
		t.Errorf("server.session_idle_timeout: got %s, want 5m", cfg.Server.SessionIdleTimeout.Std())
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "sk-sotto-test" {
		t.Errorf("auth.api_keys: got %v", cfg.Auth.APIKeys)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers.llm.name: got %q, want %q", cfg.Providers.LLM.Name, "openai")
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("providers.llm.model: got %q, want %q", cfg.Providers.LLM.Model, "gpt-4o-mini")
	}
	if fb := cfg.Providers.LLM.Fallback; fb == nil || fb.Name != "ollama" {
		t.Errorf("providers.llm.fallback: got %+v, want name ollama", fb)
	}
	cb := cfg.Providers.LLM.CircuitBreaker
	if cb == nil {
		t.Fatal("providers.llm.circuit_breaker: got nil")
	}
	if cb.FailureThreshold != 3 {
		t.Errorf("circuit_breaker.failure_threshold: got %d, want 3", cb.FailureThreshold)
	}
	if cb.Cooldown.Std() != 30*time.Second {
		t.Errorf("circuit_breaker.cooldown: got %s, want 30s", cb.Cooldown.Std())
	}
	if cfg.Providers.STT.Model != "nova-2" {
		t.Errorf("providers.stt.model: got %q, want %q", cfg.Providers.STT.Model, "nova-2")
	}
	if got, ok := cfg.Providers.VAD.Options["threshold"].(float64); !ok || got != 0.5 {
		t.Errorf("providers.vad.options.threshold: got %v", cfg.Providers.VAD.Options["threshold"])
	}
	if cfg.Defaults.Voice != "cedar" {
		t.Errorf("session_defaults.voice: got %q, want %q", cfg.Defaults.Voice, "cedar")
	}
	if cfg.Defaults.Temperature != 0.7 {
		t.Errorf("session_defaults.temperature: got %.2f, want 0.7", cfg.Defaults.Temperature)
	}
	if len(cfg.Transcript.Vocabulary) != 2 {
		t.Fatalf("transcript.vocabulary: got %d entries, want 2", len(cfg.Transcript.Vocabulary))
	}
	if cfg.Transcript.Vocabulary[0] != "Sotto" {
		t.Errorf("transcript.vocabulary[0]: got %q", cfg.Transcript.Vocabulary[0])
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed (no required top-level fields).
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLoadFromReader_EmptyFileIsValid(t *testing.T) {
	// A zero-byte file decodes to the zero config.
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty file: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
}

func TestLoadFromReader_UnknownKeyRejected(t *testing.T) {
	yaml := `
server:
  listen_address: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "listen_address") {
		t.Errorf("error should name the unknown key, got: %v", err)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	yaml := `
server:
  session_idle_timeout: fast
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error should mention duration, got: %v", err)
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_NegativeMaxSessions(t *testing.T) {
	yaml := `
server:
  max_sessions: -4
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative max_sessions, got nil")
	}
	if !strings.Contains(err.Error(), "max_sessions") {
		t.Errorf("error should mention max_sessions, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	yaml := `
server:
  tls:
    cert_file: /etc/sotto/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for partial TLS config, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_EmptyAPIKey(t *testing.T) {
	yaml := `
auth:
  api_keys:
    - sk-ok
    - ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty api key, got nil")
	}
	if !strings.Contains(err.Error(), "api_keys[1]") {
		t.Errorf("error should name the empty entry, got: %v", err)
	}
}

func TestValidate_TemperatureOutOfRange(t *testing.T) {
	yaml := `
session_defaults:
  temperature: 3.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range temperature, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should mention temperature, got: %v", err)
	}
}

func TestValidate_EmptyVocabularyTerm(t *testing.T) {
	yaml := `
transcript:
  vocabulary:
    - Sotto
    - "   "
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for blank vocabulary term, got nil")
	}
	if !strings.Contains(err.Error(), "vocabulary[1]") {
		t.Errorf("error should name the blank entry, got: %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownTTS(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownVAD(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateVAD(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

// ── Registry with registered factories ───────────────────────────────────────

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubLLM{}
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubSTT{}
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubTTS{}
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredVAD(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubVAD{}
	reg.RegisterVAD("stub", func(e config.ProviderEntry) (vad.Engine, error) {
		return want, nil
	})
	got, err := reg.CreateVAD(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned engine is not the expected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

// ── Stub implementations (satisfy interfaces for the compiler) ────────────────

// stubLLM implements llm.Provider with no-op methods.
type stubLLM struct{}

func (s *stubLLM) StreamCompletion(_ context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}
func (s *stubLLM) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

// stubSTT implements stt.Provider.
type stubSTT struct{}

func (s *stubSTT) Transcribe(_ context.Context, _ stt.TranscribeRequest) (*types.Transcript, error) {
	return &types.Transcript{}, nil
}

// stubTTS implements tts.Provider.
type stubTTS struct{}

func (s *stubTTS) SynthesizeStream(_ context.Context, _ <-chan string, _ types.VoiceProfile) (<-chan []byte, <-chan error, error) {
	audio := make(chan []byte)
	errs := make(chan error, 1)
	close(audio)
	close(errs)
	return audio, errs, nil
}
func (s *stubTTS) ListVoices(_ context.Context) ([]types.VoiceProfile, error) { return nil, nil }

// stubVAD implements vad.Engine.
type stubVAD struct{}

func (s *stubVAD) NewSession(_ vad.Config) (vad.SessionHandle, error) { return nil, nil }
