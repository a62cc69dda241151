package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "whisper", "whisper-native", "deepgram"},
	"tts": {"openai", "elevenlabs", "coqui"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found; soft
// issues that the server can run with are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d is negative", cfg.Server.MaxSessions))
	}
	if cfg.Server.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.session_idle_timeout %s is negative", cfg.Server.SessionIdleTimeout.Std()))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Auth
	if cfg.Auth.PostgresDSN == "" && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("no auth.api_keys or auth.postgres_dsn configured; the realtime endpoint accepts unauthenticated connections")
	}
	if cfg.Auth.PostgresDSN != "" && len(cfg.Auth.APIKeys) > 0 {
		slog.Warn("auth.postgres_dsn takes precedence; auth.api_keys is ignored")
	}
	for i, key := range cfg.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d] is empty", i))
		}
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; conversation sessions will be refused")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; input transcription is disabled and turn-end responses will be skipped")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; responses will carry text only")
	}
	if cfg.Providers.VAD.Name == "" {
		slog.Warn("providers.vad is not configured; clients must commit audio manually")
	}

	validateSlot(&errs, "llm", cfg.Providers.LLM)
	validateSlot(&errs, "stt", cfg.Providers.STT)
	validateSlot(&errs, "tts", cfg.Providers.TTS)
	validateSlot(&errs, "vad", cfg.Providers.VAD)
	if cfg.Providers.VAD.Fallback != nil || cfg.Providers.VAD.CircuitBreaker != nil {
		slog.Warn("providers.vad resilience settings are ignored; VAD runs in-process")
	}

	// Session defaults
	if t := cfg.Defaults.Temperature; t != 0 && (t < 0 || t > 2) {
		errs = append(errs, fmt.Errorf("session_defaults.temperature %v is out of range [0, 2]", t))
	}

	// Transcript vocabulary
	for i, term := range cfg.Transcript.Vocabulary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("transcript.vocabulary[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// validateSlot checks the resilience wrapping of one provider slot.
func validateSlot(errs *[]error, kind string, slot ProviderConfig) {
	if fb := slot.Fallback; fb != nil {
		if fb.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s.fallback.name is required", kind))
		} else {
			validateProviderName(kind, fb.Name)
			if slot.Name != "" && fb.Name == slot.Name && fb.Model == slot.Model {
				slog.Warn("fallback is identical to the primary provider",
					"kind", kind, "name", fb.Name)
			}
		}
		if slot.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s.fallback is set but no primary provider is configured", kind))
		}
	}
	if cb := slot.CircuitBreaker; cb != nil {
		if cb.FailureThreshold < 0 {
			*errs = append(*errs, fmt.Errorf("providers.%s.circuit_breaker.failure_threshold %d is negative", kind, cb.FailureThreshold))
		}
		if cb.Cooldown < 0 {
			*errs = append(*errs, fmt.Errorf("providers.%s.circuit_breaker.cooldown %s is negative", kind, cb.Cooldown.Std()))
		}
		if cb.HalfOpenProbes < 0 {
			*errs = append(*errs, fmt.Errorf("providers.%s.circuit_breaker.half_open_probes %d is negative", kind, cb.HalfOpenProbes))
		}
		if slot.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s.circuit_breaker is set but no primary provider is configured", kind))
		}
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
