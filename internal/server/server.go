// Package server exposes the gateway over HTTP: the /v1/realtime WebSocket
// endpoint plus operational routes for health probes and Prometheus metrics.
//
// The server owns the session registry. It enforces the concurrent-session
// cap before upgrading a connection, tracks every running session so a
// graceful shutdown can drain them with close code 1000, and hands each
// accepted socket to a [gateway.Session] actor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sotto-ai/sotto/internal/auth"
	"github.com/sotto-ai/sotto/internal/gateway"
	"github.com/sotto-ai/sotto/internal/health"
	"github.com/sotto-ai/sotto/internal/observe"
	"github.com/sotto-ai/sotto/internal/transcript"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers before the connection is dropped.
const readHeaderTimeout = 10 * time.Second

// Config holds the dependencies and settings for a [Server].
type Config struct {
	// ListenAddr is the TCP address to bind (e.g., ":8080").
	ListenAddr string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// MaxSessions caps concurrent realtime sessions. At capacity new
	// connections are refused with 503 before the WebSocket upgrade. Zero
	// means unlimited.
	MaxSessions int

	// IdleTimeout closes sessions that receive no client event for this
	// long. Zero keeps the gateway default.
	IdleTimeout time.Duration

	// Auth validates bearer keys. Nil accepts every connection.
	Auth auth.Authenticator

	// Providers back each session's pipeline.
	Providers gateway.Providers

	// Defaults returns the configuration seed for new sessions. It is
	// called once per session so config reloads reach sessions opened
	// afterwards. Nil means protocol defaults.
	Defaults func() realtime.SessionDefaults

	// Corrector fixes misheard vocabulary in transcripts.
	Corrector *transcript.Corrector

	// Vocabulary supplies the live correction vocabulary; it must be safe
	// for concurrent use.
	Vocabulary func() []string

	// Health serves /healthz and /readyz when set.
	Health *health.Handler

	// Metrics records session and HTTP instruments. Nil uses the process
	// default.
	Metrics *observe.Metrics

	// Logger is the base logger. Nil means slog.Default().
	Logger *slog.Logger
}

// Server accepts realtime WebSocket sessions and serves operational routes.
type Server struct {
	cfg     Config
	authn   auth.Authenticator
	metrics *observe.Metrics
	log     *slog.Logger

	mu       sync.Mutex
	reserved int
	active   map[string]context.CancelFunc
	draining bool
	wg       sync.WaitGroup

	httpSrv *http.Server
}

// New creates a Server from cfg. Nothing listens until ListenAndServe.
func New(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		authn:   cfg.Auth,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		active:  make(map[string]context.CancelFunc),
	}
	if s.authn == nil {
		s.authn = auth.AllowAll{}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns the full route set. The realtime endpoint bypasses the
// HTTP middleware: the connection is hijacked for WebSocket use and lives
// far longer than a request-response cycle, so request metrics would only
// mislead.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/realtime", s.handleRealtime)

	ops := http.NewServeMux()
	if s.cfg.Health != nil {
		s.cfg.Health.Register(ops)
	}
	ops.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", observe.Middleware(s.metrics)(ops))

	return mux
}

// ListenAndServe runs the HTTP listener until ctx is cancelled or the
// listener fails. It returns nil on cancellation; call Shutdown afterwards
// to drain sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			errCh <- srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	s.log.Info("listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCertFile != "")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	}
}

// Shutdown drains all active sessions (each socket closes with 1000 "server
// shutting down") and stops the listener. If ctx expires first, remaining
// sessions are abandoned and the context error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	cancels := make([]context.CancelFunc, 0, len(s.active))
	for _, cancel := range s.active {
		cancels = append(cancels, cancel)
	}
	srv := s.httpSrv
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("server: drain sessions: %w", ctx.Err())
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server: stop listener: %w", err)
		}
	}
	return nil
}

// ActiveSessions reports how many sessions are currently running.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// handleRealtime upgrades GET /v1/realtime to a WebSocket and runs the
// session until the peer disconnects, the idle timer fires or the server
// shuts down. Capacity is checked before the upgrade so a full server
// answers with a plain 503; authentication failures complete the upgrade
// first and then close with 4401, because WebSocket clients cannot read the
// body of a failed handshake.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		http.Error(w, "missing model query parameter", http.StatusBadRequest)
		return
	}
	intent, err := parseIntent(r.URL.Query().Get("intent"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.reserve() {
		http.Error(w, "session capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.release()

	authErr := s.authn.Authenticate(r.Context(), bearerKey(r))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Cross-origin dialing is fine: access control is the bearer key,
		// not the Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	switch {
	case authErr == nil:
	case errors.Is(authErr, auth.ErrInvalidKey):
		s.log.Warn("unauthorized realtime connection", "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusCode(realtime.CloseUnauthorized), "invalid api key")
		return
	default:
		s.log.Error("authentication backend failed", "error", authErr)
		_ = conn.Close(websocket.StatusCode(realtime.CloseInternalError), "authentication unavailable")
		return
	}

	// The request context is cancelled before a response interrupted by
	// session close settles, so metric callbacks get a detached context.
	mctx := context.WithoutCancel(r.Context())
	opts := []gateway.Option{
		gateway.WithLogger(s.log),
		gateway.WithIdleTimeout(s.cfg.IdleTimeout),
		gateway.WithResponseObserver(gateway.ResponseObserver{
			Started: func() { s.metrics.RecordResponseStart(mctx) },
			Settled: func(status string, elapsed time.Duration) {
				s.metrics.RecordResponseEnd(mctx, status, elapsed)
			},
		}),
	}
	if s.cfg.Defaults != nil {
		opts = append(opts, gateway.WithDefaults(s.cfg.Defaults()))
	}
	if s.cfg.Corrector != nil {
		opts = append(opts, gateway.WithCorrector(s.cfg.Corrector))
	}
	if s.cfg.Vocabulary != nil {
		opts = append(opts, gateway.WithVocabulary(s.cfg.Vocabulary))
	}
	sess := gateway.NewSession(newWSTransport(conn), model, intent, s.cfg.Providers, opts...)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !s.register(sess.ID(), cancel) {
		_ = conn.Close(websocket.StatusCode(realtime.CloseNormal), "server shutting down")
		return
	}
	defer s.unregister(sess.ID())

	s.metrics.RecordSessionStart(ctx, string(intent))
	defer s.metrics.RecordSessionEnd(mctx)

	s.log.Info("realtime session connected",
		"session_id", sess.ID(), "model", model, "intent", intent, "remote", r.RemoteAddr)

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("session ended with error", "session_id", sess.ID(), "error", err)
	}
	s.log.Info("realtime session closed", "session_id", sess.ID())
}

// reserve claims a session slot. It fails when the server is draining or at
// capacity.
func (s *Server) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	if s.cfg.MaxSessions > 0 && s.reserved >= s.cfg.MaxSessions {
		return false
	}
	s.reserved++
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

// register adds a running session to the registry. It fails when shutdown
// started after the slot was reserved.
func (s *Server) register(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.active[id] = cancel
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	s.wg.Done()
}

// bearerKey extracts the key from an "Authorization: Bearer <key>" header.
// A missing or differently-shaped header yields the empty key, which the
// authenticator rejects unless it allows anonymous access.
func bearerKey(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// parseIntent maps the intent query parameter to a session intent. Absent
// means conversation.
func parseIntent(raw string) (realtime.Intent, error) {
	switch raw {
	case "", string(realtime.IntentConversation):
		return realtime.IntentConversation, nil
	case string(realtime.IntentTranscription):
		return realtime.IntentTranscription, nil
	default:
		return "", fmt.Errorf("unknown intent %q", raw)
	}
}
