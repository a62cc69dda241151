// Package app wires the Sotto subsystems into a running gateway process.
//
// The App struct owns the full lifecycle: New builds every subsystem from
// configuration — observability, authentication, transcript correction,
// health probes, the config watcher and the HTTP server — Run serves until
// the context ends, and Shutdown drains sessions and tears the subsystems
// down in order.
//
// For testing, inject doubles via functional options (WithAuthenticator,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sotto-ai/sotto/internal/auth"
	"github.com/sotto-ai/sotto/internal/config"
	"github.com/sotto-ai/sotto/internal/gateway"
	"github.com/sotto-ai/sotto/internal/health"
	"github.com/sotto-ai/sotto/internal/observe"
	"github.com/sotto-ai/sotto/internal/server"
	"github.com/sotto-ai/sotto/internal/transcript"
	"github.com/sotto-ai/sotto/internal/transcript/phonetic"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// App owns all subsystem lifetimes for one gateway process.
type App struct {
	cfg       *config.Config
	providers gateway.Providers

	log      *slog.Logger
	logLevel *slog.LevelVar
	version  string

	// live is the hot-reload snapshot. Session defaults and the correction
	// vocabulary are read through it, so a config change reaches the next
	// session or utterance without a restart.
	live atomic.Pointer[config.Config]

	authn     auth.Authenticator
	keystore  *auth.Keystore
	corrector *transcript.Corrector
	metrics   *observe.Metrics
	checks    *health.Handler
	server    *server.Server
	watcher   *config.Watcher

	configPath     string
	reloadInterval time.Duration

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the application logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		if log != nil {
			a.log = log
		}
	}
}

// WithLogLevel hands over the level var behind the logger so config reloads
// can adjust verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithAuthenticator injects an authenticator instead of building one from
// the auth config.
func WithAuthenticator(authn auth.Authenticator) Option {
	return func(a *App) { a.authn = authn }
}

// WithMetrics injects a metrics instance instead of initialising the OTel
// SDK with its Prometheus exporter. Tests use this to keep the global OTel
// providers untouched.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigFile enables hot reloading from the given config file.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithReloadInterval overrides how often the config file is polled.
func WithReloadInterval(d time.Duration) Option {
	return func(a *App) { a.reloadInterval = d }
}

// WithVersion sets the version reported in telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main, populated via the config registry and wrapped with
// resilience; New adds the instrumentation layer on top. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers gateway.Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	a.live.Store(cfg)
	for _, o := range opts {
		o(a)
	}

	// ── 1. Observability ─────────────────────────────────────────────────
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	// ── 2. Authentication ────────────────────────────────────────────────
	if err := a.initAuth(ctx); err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	// ── 3. Transcript correction ─────────────────────────────────────────
	a.corrector = transcript.NewCorrector(phonetic.New())

	// ── 4. Health probes ─────────────────────────────────────────────────
	a.initHealth()

	// ── 5. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	// ── 6. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initObservability sets up the OTel SDK unless metrics were injected, then
// wraps every configured provider with request instrumentation.
func (a *App) initObservability(ctx context.Context) error {
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: a.version,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(fctx)
		})
		a.metrics = observe.DefaultMetrics()
	}
	a.providers = instrumentProviders(a.providers, a.cfg.Providers, a.metrics)
	return nil
}

// initAuth builds the authenticator from config: a Postgres keystore when a
// DSN is configured, a static key list otherwise, open access when neither
// is set.
func (a *App) initAuth(ctx context.Context) error {
	if a.authn != nil {
		return nil
	}
	switch {
	case a.cfg.Auth.PostgresDSN != "":
		ks, err := auth.NewKeystore(ctx, a.cfg.Auth.PostgresDSN)
		if err != nil {
			return err
		}
		a.authn, a.keystore = ks, ks
		a.closers = append(a.closers, func() error {
			ks.Close()
			return nil
		})
		a.log.Info("api keys validated against postgres")
	case len(a.cfg.Auth.APIKeys) > 0:
		a.authn = auth.NewStaticKeys(a.cfg.Auth.APIKeys)
		a.log.Info("api keys validated against a static list", "keys", len(a.cfg.Auth.APIKeys))
	default:
		a.log.Warn("no auth configured; accepting unauthenticated connections")
		a.authn = auth.AllowAll{}
	}
	return nil
}

// initHealth assembles the readiness checkers: the keystore when auth runs
// against Postgres, and the provider wiring itself.
func (a *App) initHealth() {
	var checks []health.Checker
	if a.keystore != nil {
		checks = append(checks, health.Checker{Name: "keystore", Check: a.keystore.Ping})
	}
	checks = append(checks, health.Checker{Name: "providers", Check: func(context.Context) error {
		if a.providers.LLM == nil && a.providers.STT == nil {
			return errors.New("no llm or stt provider configured")
		}
		return nil
	}})
	a.checks = health.New(checks...)
}

// initWatcher starts polling the config file when one was given.
func (a *App) initWatcher() error {
	if a.configPath == "" {
		return nil
	}
	var wopts []config.WatcherOption
	if a.reloadInterval > 0 {
		wopts = append(wopts, config.WithInterval(a.reloadInterval))
	}
	w, err := config.NewWatcher(a.configPath, a.applyReload, wopts...)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// applyReload lands a config change: hot-applicable groups take effect on
// the next use, everything else is logged as needing a restart.
func (a *App) applyReload(old, new *config.Config) {
	diff := config.Diff(old, new)
	a.live.Store(new)
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(diff.NewLogLevel.Slog())
		a.log.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VocabularyChanged {
		a.log.Info("correction vocabulary reloaded", "terms", len(diff.NewVocabulary))
	}
	if diff.DefaultsChanged {
		a.log.Info("session defaults reloaded")
	}
	for _, section := range diff.RestartRequired {
		a.log.Warn("config change needs a restart", "section", section)
	}
}

// initServer assembles the HTTP server from everything built so far.
func (a *App) initServer() {
	scfg := server.Config{
		ListenAddr:  a.cfg.Server.ListenAddr,
		MaxSessions: a.cfg.Server.MaxSessions,
		IdleTimeout: a.cfg.Server.SessionIdleTimeout.Std(),
		Auth:        a.authn,
		Providers:   a.providers,
		Defaults:    a.sessionDefaults,
		Corrector:   a.corrector,
		Vocabulary:  a.vocabulary,
		Health:      a.checks,
		Metrics:     a.metrics,
		Logger:      a.log,
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		scfg.TLSCertFile, scfg.TLSKeyFile = tls.CertFile, tls.KeyFile
	}
	a.server = server.New(scfg)
}

// sessionDefaults snapshots the live session seed for one new session.
func (a *App) sessionDefaults() realtime.SessionDefaults {
	d := a.live.Load().Defaults
	return realtime.SessionDefaults{
		Voice:              d.Voice,
		Instructions:       d.Instructions,
		TranscriptionModel: d.TranscriptionModel,
		Temperature:        d.Temperature,
	}
}

// vocabulary serves the live correction vocabulary. It runs on transcription
// goroutines, so it reads the snapshot pointer and nothing else.
func (a *App) vocabulary() []string {
	return a.live.Load().Transcript.Vocabulary
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the realtime gateway until ctx is cancelled or the listener
// fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("gateway listening",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"max_sessions", a.cfg.Server.MaxSessions,
		"hot_reload", a.watcher != nil)
	return a.server.ListenAndServe(ctx)
}

// Handler returns the full HTTP surface: the realtime endpoint plus the
// operational routes. It lets tests serve the wired application without
// binding a listener.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ActiveSessions reports how many realtime sessions are currently running.
func (a *App) ActiveSessions() int { return a.server.ActiveSessions() }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains running sessions, then tears subsystems down in init
// order. It respects the context deadline: if ctx expires, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn("server shutdown incomplete", "error", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
