// Command sotto is the main entry point for the Sotto realtime speech gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sotto-ai/sotto/internal/app"
	"github.com/sotto-ai/sotto/internal/config"
	"github.com/sotto-ai/sotto/internal/gateway"
	"github.com/sotto-ai/sotto/internal/resilience"
	"github.com/sotto-ai/sotto/pkg/provider/llm"
	"github.com/sotto-ai/sotto/pkg/provider/llm/anyllm"
	oaillm "github.com/sotto-ai/sotto/pkg/provider/llm/openai"
	"github.com/sotto-ai/sotto/pkg/provider/stt"
	"github.com/sotto-ai/sotto/pkg/provider/stt/deepgram"
	oaistt "github.com/sotto-ai/sotto/pkg/provider/stt/openai"
	"github.com/sotto-ai/sotto/pkg/provider/stt/whisper"
	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/provider/tts/coqui"
	"github.com/sotto-ai/sotto/pkg/provider/tts/elevenlabs"
	oaitts "github.com/sotto-ai/sotto/pkg/provider/tts/openai"
	"github.com/sotto-ai/sotto/pkg/provider/vad"
	"github.com/sotto-ai/sotto/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("sotto " + version)
		return 0
	}

	// ── Environment ────────────────────────────────────────────────────────────
	// A local .env file supplies provider API keys during development. Absence
	// is fine; production deployments set real environment variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "sotto: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sotto: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sotto: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can adjust it while the
	// process runs.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sotto starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "error", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLogLevel(level),
		app.WithConfigFile(*configPath),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Sotto. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"tts": {"openai", "elevenlabs", "coqui"},
	"vad": {"energy"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the native SDK client; the remaining hosted backends go
	// through any-llm and share the same pattern: optional APIKey + BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(apiKeyOr(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(apiKeyOr(entry, "OPENAI_API_KEY"), opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if keywords := optStrings(entry.Options, "keywords"); len(keywords) > 0 {
			opts = append(opts, deepgram.WithKeywords(keywords))
		}
		return deepgram.New(apiKeyOr(entry, "DEEPGRAM_API_KEY"), opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(apiKeyOr(entry, "OPENAI_API_KEY"), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(apiKeyOr(entry, "ELEVENLABS_API_KEY"), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry,
// layers the configured resilience on top, and returns them in a
// [gateway.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (gateway.Providers, error) {
	var ps gateway.Providers

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM.ProviderEntry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return ps, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			if ps.LLM, err = resilientLLM(p, cfg.Providers.LLM, reg); err != nil {
				return ps, err
			}
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT.ProviderEntry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return ps, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			if ps.STT, err = resilientSTT(p, cfg.Providers.STT, reg); err != nil {
				return ps, err
			}
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS.ProviderEntry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return ps, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			if ps.TTS, err = resilientTTS(p, cfg.Providers.TTS, reg); err != nil {
				return ps, err
			}
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	// VAD runs in-process on every audio frame; it gets no fallback chain.
	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD.ProviderEntry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "vad", "name", name)
		} else if err != nil {
			return ps, fmt.Errorf("create vad engine %q: %w", name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	return ps, nil
}

// ── Resilience ────────────────────────────────────────────────────────────────

// resilientLLM layers the configured circuit breaker and fallback chain on
// top of the primary provider. With neither configured, the primary is
// returned bare.
func resilientLLM(primary llm.Provider, pc config.ProviderConfig, reg *config.Registry) (llm.Provider, error) {
	if pc.Fallback == nil && pc.CircuitBreaker == nil {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, pc.Name, fallbackConfig(pc))
	if pc.Fallback != nil {
		alt, err := reg.CreateLLM(*pc.Fallback)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", pc.Fallback.Name, err)
		}
		fb.AddFallback(pc.Fallback.Name, alt)
		slog.Info("fallback registered", "kind", "llm", "primary", pc.Name, "fallback", pc.Fallback.Name)
	}
	return fb, nil
}

func resilientSTT(primary stt.Provider, pc config.ProviderConfig, reg *config.Registry) (stt.Provider, error) {
	if pc.Fallback == nil && pc.CircuitBreaker == nil {
		return primary, nil
	}
	fb := resilience.NewSTTFallback(primary, pc.Name, fallbackConfig(pc))
	if pc.Fallback != nil {
		alt, err := reg.CreateSTT(*pc.Fallback)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", pc.Fallback.Name, err)
		}
		fb.AddFallback(pc.Fallback.Name, alt)
		slog.Info("fallback registered", "kind", "stt", "primary", pc.Name, "fallback", pc.Fallback.Name)
	}
	return fb, nil
}

func resilientTTS(primary tts.Provider, pc config.ProviderConfig, reg *config.Registry) (tts.Provider, error) {
	if pc.Fallback == nil && pc.CircuitBreaker == nil {
		return primary, nil
	}
	fb := resilience.NewTTSFallback(primary, pc.Name, fallbackConfig(pc))
	if pc.Fallback != nil {
		alt, err := reg.CreateTTS(*pc.Fallback)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", pc.Fallback.Name, err)
		}
		fb.AddFallback(pc.Fallback.Name, alt)
		slog.Info("fallback registered", "kind", "tts", "primary", pc.Name, "fallback", pc.Fallback.Name)
	}
	return fb, nil
}

// fallbackConfig translates the YAML breaker settings into resilience
// config. Zero values fall through to the package defaults.
func fallbackConfig(pc config.ProviderConfig) resilience.FallbackConfig {
	fc := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{Name: pc.Name}}
	if bc := pc.CircuitBreaker; bc != nil {
		fc.CircuitBreaker.MaxFailures = bc.FailureThreshold
		fc.CircuitBreaker.ResetTimeout = bc.Cooldown.Std()
		fc.CircuitBreaker.HalfOpenMax = bc.HalfOpenProbes
	}
	return fc
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═════════════════════════════════════╗")
	fmt.Println("║       Sotto — startup summary       ║")
	fmt.Println("╠═════════════════════════════════════╣")
	printRow("LLM", providerSummary(cfg.Providers.LLM))
	printRow("STT", providerSummary(cfg.Providers.STT))
	printRow("TTS", providerSummary(cfg.Providers.TTS))
	printRow("VAD", cfg.Providers.VAD.Name)
	printRow("Auth", authSummary(cfg))
	printRow("Sessions", sessionsSummary(cfg))
	printRow("Listen", listenSummary(cfg))
	fmt.Println("╚═════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 22 {
		value = value[:21] + "…"
	}
	fmt.Printf("║  %-9s : %-22s ║\n", label, value)
}

func providerSummary(pc config.ProviderConfig) string {
	if pc.Name == "" {
		return ""
	}
	value := pc.Name
	if pc.Model != "" {
		value += " / " + pc.Model
	}
	if pc.Fallback != nil {
		value += " +fb"
	}
	return value
}

func authSummary(cfg *config.Config) string {
	switch {
	case cfg.Auth.PostgresDSN != "":
		return "postgres keystore"
	case len(cfg.Auth.APIKeys) > 0:
		return strconv.Itoa(len(cfg.Auth.APIKeys)) + " static keys"
	default:
		return "(open access)"
	}
}

func sessionsSummary(cfg *config.Config) string {
	if cfg.Server.MaxSessions <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(cfg.Server.MaxSessions)
}

func listenSummary(cfg *config.Config) string {
	addr := cfg.Server.ListenAddr
	if cfg.Server.TLS != nil {
		return addr + " (tls)"
	}
	return addr
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// apiKeyOr returns the configured API key, falling back to the named
// environment variable so keys can live in .env instead of the YAML file.
func apiKeyOr(entry config.ProviderEntry, envVar string) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return os.Getenv(envVar)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optStrings extracts a string list from a provider Options map. A single
// string value is treated as a one-element list.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
