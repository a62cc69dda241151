// Package gateway implements the realtime session: a single-goroutine actor
// that owns the conversation log, the input audio buffer and the response
// pipeline for one WebSocket connection.
//
// Every mutation flows through the actor loop. The socket reader, the
// transcription tasks and the response pipeline goroutines talk to it
// exclusively by posting closures, so session state needs no locks and the
// order of emitted events follows processing order by construction.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sotto-ai/sotto/internal/transcript"
	"github.com/sotto-ai/sotto/pkg/audio"
	"github.com/sotto-ai/sotto/pkg/provider/llm"
	"github.com/sotto-ai/sotto/pkg/provider/stt"
	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/provider/upstream"
	"github.com/sotto-ai/sotto/pkg/provider/vad"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// defaultIdleTimeout closes sessions that stop sending client events.
const defaultIdleTimeout = 5 * time.Minute

// actQueueDepth bounds closures queued for the actor. Producers block once
// it fills, which backpressures the pipeline instead of growing unbounded.
const actQueueDepth = 64

// Transport is the message-framed connection a session speaks over. The
// server hands the gateway an adapter over its WebSocket connection so
// session logic stays independent of the socket library.
type Transport interface {
	// ReadMessage returns the next text frame. Implementations return
	// ErrNonTextFrame for binary frames and ErrFrameTooLarge for oversized
	// ones; both are protocol violations that close the session.
	ReadMessage(ctx context.Context) ([]byte, error)
	// WriteMessage writes one text frame.
	WriteMessage(ctx context.Context, data []byte) error
	// Close closes the connection with a status code and reason.
	Close(code int, reason string) error
}

var (
	// ErrNonTextFrame reports a client frame that was not a text frame.
	ErrNonTextFrame = errors.New("gateway: non-text frame")
	// ErrFrameTooLarge reports a client frame over the transport limit.
	ErrFrameTooLarge = errors.New("gateway: frame too large")
)

// Providers bundles the engines a session drives. LLM is required for
// conversation sessions; a nil STT disables input transcription, a nil TTS
// disables audio synthesis and a nil VAD disables server turn detection.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Engine
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateClosing
	stateClosed
)

// Session is the actor for one connection.
type Session struct {
	id     string
	model  string
	intent realtime.Intent

	tr        Transport
	providers Providers
	log       *slog.Logger

	defaults    realtime.SessionDefaults
	idleTimeout time.Duration
	bufferCap   time.Duration
	sttTimeout  time.Duration
	llmIdle     time.Duration
	ttsIdle     time.Duration

	corrector  *transcript.Corrector
	vocabulary func() []string
	observer   ResponseObserver

	// Actor state. Owned by the Run loop; reachable elsewhere only through
	// posted closures.
	cfg      *realtime.Session
	conv     *Conversation
	buffer   *InputBuffer
	detector *turnDetector
	active   *responseRun
	// pendingItemID is the pre-minted id announced by speech_started, used
	// by the commit that ends the same turn.
	pendingItemID string
	// autoResponseAfter defers the turn-end response until the named
	// item's transcription has settled.
	autoResponseAfter string

	state       sessionState
	closeCode   int
	closeReason string

	acts   chan func()
	idle   *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the base logger. The session id is attached to it.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithDefaults seeds the initial session configuration.
func WithDefaults(d realtime.SessionDefaults) Option {
	return func(s *Session) { s.defaults = d }
}

// WithIdleTimeout overrides how long the session survives without client
// events.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithBufferCapacity bounds the uncommitted input audio buffer.
func WithBufferCapacity(d time.Duration) Option {
	return func(s *Session) { s.bufferCap = d }
}

// WithCorrector applies vocabulary correction to transcripts.
func WithCorrector(c *transcript.Corrector) Option {
	return func(s *Session) { s.corrector = c }
}

// WithVocabulary supplies the correction vocabulary. The function runs on
// the transcription goroutine once per turn, so it must be safe for
// concurrent use; serving it from a live config snapshot keeps hot reloads
// visible mid-session.
func WithVocabulary(fn func() []string) Option {
	return func(s *Session) { s.vocabulary = fn }
}

// ResponseObserver receives response lifecycle notifications. Both callbacks
// run on the session actor, so they must return promptly and must not call
// back into the session.
type ResponseObserver struct {
	// Started fires when a response begins.
	Started func()
	// Settled fires when a response reaches a terminal status, with the time
	// elapsed since it started. A response still running at session close
	// settles as cancelled.
	Settled func(status string, elapsed time.Duration)
}

// WithResponseObserver reports response lifecycle to o.
func WithResponseObserver(o ResponseObserver) Option {
	return func(s *Session) { s.observer = o }
}

// WithStageTimeouts overrides the per-stage watchdogs. Zero values keep the
// defaults.
func WithStageTimeouts(sttTotal, llmIdle, ttsIdle time.Duration) Option {
	return func(s *Session) {
		if sttTotal > 0 {
			s.sttTimeout = sttTotal
		}
		if llmIdle > 0 {
			s.llmIdle = llmIdle
		}
		if ttsIdle > 0 {
			s.ttsIdle = ttsIdle
		}
	}
}

// NewSession builds a session over tr. Nothing runs until Run is called.
func NewSession(tr Transport, model string, intent realtime.Intent, p Providers, opts ...Option) *Session {
	s := &Session{
		id:          NewSessionID(),
		model:       model,
		intent:      intent,
		tr:          tr,
		providers:   p,
		log:         slog.Default(),
		idleTimeout: defaultIdleTimeout,
		sttTimeout:  defaultSTTTimeout,
		llmIdle:     defaultLLMIdleTimeout,
		ttsIdle:     defaultTTSIdleTimeout,
		acts:        make(chan func(), actQueueDepth),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session_id", s.id)
	s.cfg = realtime.NewSession(s.id, model, intent, s.defaults)
	if intent == realtime.IntentTranscription && model != "" {
		// The model query parameter names the STT model on transcription
		// sessions.
		if s.cfg.InputAudioTranscription == nil {
			s.cfg.InputAudioTranscription = &realtime.InputAudioTranscription{}
		}
		s.cfg.InputAudioTranscription.Model = model
	}
	if p.VAD == nil {
		s.cfg.TurnDetection = nil
	}
	s.conv = NewConversation(s.log)
	s.buffer = NewInputBuffer(s.bufferCap)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Run owns the session lifecycle: it emits session.created, starts the
// socket reader, and processes every event on a single goroutine until the
// peer goes away, the idle timer fires or ctx is cancelled. It returns once
// the socket is closed and all session goroutines have exited.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	if s.cfg.TurnDetection != nil {
		det, err := newTurnDetector(s.providers.VAD, s.cfg.TurnDetection, 0)
		if err != nil {
			s.log.Error("turn detector unavailable, disabling server vad", "error", err)
			s.cfg.TurnDetection = nil
		} else {
			s.detector = det
		}
	}

	s.emit(realtime.NewSessionCreated(s.cfg))
	s.log.Info("session opened", "model", s.model, "intent", s.intent)

	s.wg.Add(1)
	go s.readLoop()

	s.idle = time.NewTimer(s.idleTimeout)
	defer s.idle.Stop()
	for s.state == stateOpen {
		select {
		case f := <-s.acts:
			f()
		case <-s.idle.C:
			s.log.Info("closing idle session", "idle_timeout", s.idleTimeout)
			s.beginClose(realtime.CloseIdleTimeout, "session idle timeout")
		case <-s.ctx.Done():
			s.beginClose(realtime.CloseNormal, "server shutting down")
		}
	}
	s.teardown()
	return nil
}

// beginClose moves the session to closing. The Run loop finishes the
// teardown once the current closure returns.
func (s *Session) beginClose(code int, reason string) {
	if s.state != stateOpen {
		return
	}
	s.state = stateClosing
	s.closeCode, s.closeReason = code, reason
}

// teardown cancels everything the session owns, closes the socket and waits
// for the reader, transcription and pipeline goroutines to exit.
func (s *Session) teardown() {
	s.cancel()
	if s.active != nil {
		s.active.terminal = true
		s.active.cancel()
		s.notifySettled(s.active, realtime.ResponseStatusCancelled)
		s.active = nil
	}
	if s.detector != nil {
		if err := s.detector.Close(); err != nil {
			s.log.Debug("turn detector close failed", "error", err)
		}
		s.detector = nil
	}
	if err := s.tr.Close(s.closeCode, s.closeReason); err != nil {
		s.log.Debug("socket close failed", "error", err)
	}
	s.wg.Wait()
	s.state = stateClosed
	s.log.Info("session closed", "code", s.closeCode, "reason", s.closeReason)
}

// readLoop pumps socket frames into the actor. It exits on the first
// transport error, which includes the actor closing the socket in teardown.
func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		data, err := s.tr.ReadMessage(s.ctx)
		if err != nil {
			s.post(func() { s.onReadError(err) })
			return
		}
		s.post(func() { s.onClientData(data) })
	}
}

// post hands a closure to the actor. It returns false when the session is
// tearing down and the closure was dropped.
func (s *Session) post(f func()) bool {
	select {
	case s.acts <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) onReadError(err error) {
	switch {
	case errors.Is(err, ErrNonTextFrame):
		s.log.Warn("closing session: client sent a non-text frame")
		s.beginClose(realtime.CloseProtocolError, "text frames only")
	case errors.Is(err, ErrFrameTooLarge):
		s.log.Warn("closing session: client frame exceeds the size limit")
		s.beginClose(realtime.CloseProtocolError, "frame too large")
	default:
		s.log.Debug("socket read ended", "error", err)
		s.beginClose(realtime.CloseNormal, "")
	}
}

func (s *Session) onClientData(data []byte) {
	s.touchIdle()
	ev, err := realtime.ParseClientEvent(data)
	if err != nil {
		var pe *realtime.ParseError
		if errors.As(err, &pe) {
			s.emit(realtime.NewErrorEvent(pe.Err.Payload(pe.EventID)))
			return
		}
		s.emit(realtime.NewErrorEvent(realtime.AsError(err).Payload("")))
		return
	}
	s.dispatch(ev)
}

// touchIdle re-arms the idle timer. Only client traffic counts as activity;
// server-side events keep a silent client from living forever.
func (s *Session) touchIdle() {
	if s.idle == nil {
		return
	}
	if !s.idle.Stop() {
		select {
		case <-s.idle.C:
		default:
		}
	}
	s.idle.Reset(s.idleTimeout)
}

func (s *Session) dispatch(ev realtime.ClientEvent) {
	switch ev := ev.(type) {
	case *realtime.SessionUpdateEvent:
		s.handleSessionUpdate(ev)
	case *realtime.InputAudioBufferAppendEvent:
		s.handleAppend(ev)
	case *realtime.InputAudioBufferCommitEvent:
		s.handleCommit(ev)
	case *realtime.InputAudioBufferClearEvent:
		s.handleClear(ev)
	case *realtime.ConversationItemCreateEvent:
		s.handleItemCreate(ev)
	case *realtime.ConversationItemTruncateEvent:
		s.handleItemTruncate(ev)
	case *realtime.ConversationItemDeleteEvent:
		s.handleItemDelete(ev)
	case *realtime.ResponseCreateEvent:
		s.handleResponseCreate(ev)
	case *realtime.ResponseCancelEvent:
		s.handleResponseCancel(ev)
	default:
		s.emit(realtime.NewErrorEvent(realtime.Errorf(realtime.ErrInvalidRequest,
			"unhandled event type %q", ev.ClientEventType()).Payload("")))
	}
}

// emit stamps, serializes and writes one server event. A write failure tears
// the session down; there is no point replying to a dead socket.
func (s *Session) emit(ev realtime.ServerEvent) {
	if s.state != stateOpen {
		return
	}
	realtime.StampEventID(ev, NewEventID())
	data, err := realtime.MarshalServerEvent(ev)
	if err != nil {
		s.log.Error("dropping unserializable server event", "type", ev.ServerEventType(), "error", err)
		return
	}
	if err := s.tr.WriteMessage(s.ctx, data); err != nil {
		s.log.Warn("socket write failed", "type", ev.ServerEventType(), "error", err)
		s.beginClose(realtime.CloseNormal, "")
	}
}

// sendError reports err as an error event attributed to the client event
// that caused it.
func (s *Session) sendError(err error, causeEventID string) {
	pe := realtime.AsError(err)
	if pe.Kind == realtime.ErrInternal {
		s.log.Error("internal session error", "error", err)
	}
	s.emit(realtime.NewErrorEvent(pe.Payload(causeEventID)))
}

// ─── client event handlers ───

func (s *Session) handleSessionUpdate(ev *realtime.SessionUpdateEvent) {
	merged, err := realtime.ApplyUpdate(s.cfg, ev.Session)
	if err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	if s.providers.VAD == nil {
		merged.TurnDetection = nil
	}
	if err := s.swapDetector(merged.TurnDetection); err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.cfg = merged
	s.emit(realtime.NewSessionUpdated(s.cfg))
}

// swapDetector rebuilds the turn detector when an update changes
// turn_detection. The replacement is built before the old one is dropped,
// so a failed build leaves the previous configuration fully intact.
func (s *Session) swapDetector(td *realtime.TurnDetection) error {
	if turnDetectionEqual(s.cfg.TurnDetection, td) {
		return nil
	}
	var det *turnDetector
	if td != nil {
		var err error
		det, err = newTurnDetector(s.providers.VAD, td, s.buffer.WriteCursor())
		if err != nil {
			return realtime.Errorf(realtime.ErrInternal, "turn detector rebuild failed: %v", err)
		}
	}
	if s.detector != nil {
		s.detector.Close()
	}
	s.detector = det
	s.pendingItemID = ""
	return nil
}

func turnDetectionEqual(a, b *realtime.TurnDetection) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Session) handleAppend(ev *realtime.InputAudioBufferAppendEvent) {
	pcm, err := base64.StdEncoding.DecodeString(ev.Audio)
	if err != nil {
		s.sendError(realtime.NewError(realtime.ErrInvalidRequest,
			"audio is not valid base64").WithParam("audio"), ev.EventID)
		return
	}
	if err := s.buffer.Append(pcm); err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	if s.detector == nil {
		return
	}
	edges, err := s.detector.Feed(pcm)
	for _, edge := range edges {
		s.handleTurnEdge(edge)
	}
	if err != nil {
		s.log.Error("turn detector failed, disabling server vad", "error", err)
		s.detector.Close()
		s.detector = nil
		s.cfg.TurnDetection = nil
		s.sendError(realtime.Errorf(realtime.ErrInternal, "turn detection failed: %v", err), ev.EventID)
	}
}

func (s *Session) handleTurnEdge(edge turnEdge) {
	ms := int(audio.Duration(int(edge.offset)*audio.BytesPerSample, sampleRate).Milliseconds())
	switch edge.typ {
	case vad.EventSpeechStart:
		s.pendingItemID = NewItemID()
		s.log.Debug("speech started", "audio_start_ms", ms, "probability", edge.prob)
		s.emit(realtime.NewSpeechStarted(ms, s.pendingItemID))
		if s.active != nil && s.cfg.TurnDetection != nil && s.cfg.TurnDetection.InterruptResponse {
			s.cancelResponse(s.active, realtime.ReasonTurnDetected)
		}
	case vad.EventSpeechEnd:
		itemID := s.pendingItemID
		s.pendingItemID = ""
		s.log.Debug("speech stopped", "audio_end_ms", ms, "probability", edge.prob)
		s.emit(realtime.NewSpeechStopped(ms, itemID))
		s.commitTurn(edge.offset, itemID)
	}
}

// commitTurn seals a detected turn up to its end-of-speech offset.
func (s *Session) commitTurn(end int64, itemID string) {
	pcm, err := s.buffer.CommitTo(end)
	if err != nil {
		s.log.Error("turn commit failed", "offset", end, "error", err)
		return
	}
	s.sealUserAudio(pcm, itemID, true)
}

func (s *Session) handleCommit(ev *realtime.InputAudioBufferCommitEvent) {
	pcm, err := s.buffer.Commit()
	if err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.sealUserAudio(pcm, "", false)
}

// sealUserAudio turns sealed buffer audio into a completed user message
// item, announces it, and schedules transcription plus the turn-end
// response. Manual commits never trigger a response.
func (s *Session) sealUserAudio(pcm []byte, itemID string, auto bool) {
	if itemID == "" {
		itemID = NewItemID()
	}
	item := &realtime.Item{
		ID:      itemID,
		Object:  realtime.ObjectItem,
		Type:    realtime.ItemTypeMessage,
		Status:  realtime.ItemStatusCompleted,
		Role:    realtime.RoleUser,
		Content: []realtime.ContentPart{{Type: realtime.PartTypeInputAudio, PCM: pcm}},
	}
	prev, err := s.conv.Append(item)
	if err != nil {
		s.sendError(err, "")
		return
	}
	s.emit(realtime.NewInputAudioBufferCommitted(prev, item.ID))
	s.emit(realtime.NewConversationItemCreated(prev, item.WithoutAudio()))

	transcribing := s.cfg.InputAudioTranscription != nil && s.providers.STT != nil
	if transcribing {
		s.scheduleTranscription(item.ID, pcm)
	}

	if !auto || s.intent != realtime.IntentConversation || s.providers.LLM == nil {
		return
	}
	if td := s.cfg.TurnDetection; td == nil || !td.CreateResponse {
		return
	}
	if s.active != nil {
		s.log.Warn("suppressing turn-end response, one is already active", "item_id", item.ID)
		return
	}
	if transcribing {
		// Hold the response until the transcript lands so the model sees this
		// turn.
		s.autoResponseAfter = item.ID
		return
	}
	s.startResponse(s.cfg.Clone())
}

// scheduleTranscription transcribes a committed turn off the actor and posts
// the result back. The sealed PCM is never mutated afterwards, so the
// goroutine reads it without a copy.
func (s *Session) scheduleTranscription(itemID string, pcm []byte) {
	iat := s.cfg.InputAudioTranscription
	req := stt.TranscribeRequest{
		PCM:        pcm,
		SampleRate: sampleRate,
		Model:      iat.Model,
		Language:   iat.Language,
		Prompt:     iat.Prompt,
	}
	corrector, vocab := s.corrector, s.vocabulary
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tctx, cancel := context.WithTimeout(s.ctx, s.sttTimeout)
		defer cancel()
		tr, err := s.providers.STT.Transcribe(tctx, req)
		if err != nil {
			werr := upstream.Wrap(upstream.StageSTT, err)
			s.post(func() { s.finishTranscription(itemID, "", nil, werr) })
			return
		}
		text := tr.Text
		var fixes []transcript.Correction
		if corrector != nil {
			var words []string
			if vocab != nil {
				words = vocab()
			}
			text, fixes = corrector.Apply(text, words)
		}
		s.post(func() { s.finishTranscription(itemID, text, fixes, nil) })
	}()
}

// finishTranscription lands a transcription result on the actor: attach the
// transcript, report the outcome, and fire the deferred turn-end response.
func (s *Session) finishTranscription(itemID, text string, fixes []transcript.Correction, err error) {
	deferred := s.autoResponseAfter == itemID
	if deferred {
		s.autoResponseAfter = ""
	}
	it, ok := s.conv.Get(itemID)
	if !ok {
		s.log.Debug("dropping transcription result for deleted item", "item_id", itemID)
		return
	}
	if err != nil {
		pe := upstreamError(err)
		s.log.Warn("transcription failed", "item_id", itemID, "code", pe.Kind, "error", err)
		s.emit(realtime.NewInputAudioTranscriptionFailed(itemID, 0, pe.Payload("")))
		if deferred {
			s.log.Warn("skipping turn-end response: transcription failed", "item_id", itemID)
		}
		return
	}
	part, ok := it.AudioPart(0)
	if !ok {
		s.log.Error("transcribed item has no audio part", "item_id", itemID)
		return
	}
	part.Transcript = text
	for _, f := range fixes {
		s.log.Info("transcript term corrected", "item_id", itemID,
			"from", f.Original, "to", f.Corrected, "confidence", f.Confidence)
	}
	s.emit(realtime.NewInputAudioTranscriptionCompleted(itemID, 0, text))
	if !deferred {
		return
	}
	if s.active != nil {
		s.log.Warn("suppressing turn-end response, one is already active", "item_id", itemID)
		return
	}
	s.startResponse(s.cfg.Clone())
}

func (s *Session) handleClear(ev *realtime.InputAudioBufferClearEvent) {
	s.buffer.Clear()
	if s.detector != nil {
		s.detector.Reset(s.buffer.WriteCursor())
	}
	s.pendingItemID = ""
	s.emit(realtime.NewInputAudioBufferCleared())
}

func (s *Session) handleItemCreate(ev *realtime.ConversationItemCreateEvent) {
	it := ev.Item
	if err := realtime.ValidateClientItem(it); err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	switch it.Status {
	case "", realtime.ItemStatusCompleted:
		it.Status = realtime.ItemStatusCompleted
	case realtime.ItemStatusIncomplete:
	default:
		s.sendError(realtime.Errorf(realtime.ErrInvalidItem,
			"unsupported item status %q", it.Status).WithParam("item.status"), ev.EventID)
		return
	}
	it.Object = realtime.ObjectItem
	for i := range it.Content {
		p := &it.Content[i]
		if p.Type != realtime.PartTypeInputAudio || p.Audio == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			s.sendError(realtime.Errorf(realtime.ErrInvalidItem,
				"content[%d].audio is not valid base64", i).WithParam("item.content"), ev.EventID)
			return
		}
		p.PCM, p.Audio = pcm, ""
	}
	prev, err := s.conv.Insert(it, ev.PreviousItemID)
	if err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.emit(realtime.NewConversationItemCreated(prev, it.WithoutAudio()))
}

func (s *Session) handleItemTruncate(ev *realtime.ConversationItemTruncateEvent) {
	if err := s.conv.Truncate(ev.ItemID, ev.ContentIndex, ev.AudioEndMs); err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.emit(realtime.NewConversationItemTruncated(ev.ItemID, ev.ContentIndex, ev.AudioEndMs))
}

func (s *Session) handleItemDelete(ev *realtime.ConversationItemDeleteEvent) {
	if s.active != nil && s.active.references(ev.ItemID) {
		s.sendError(realtime.Errorf(realtime.ErrItemReferenced,
			"item %q is input to the active response", ev.ItemID).WithParam("item_id"), ev.EventID)
		return
	}
	if _, err := s.conv.Delete(ev.ItemID); err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.emit(realtime.NewConversationItemDeleted(ev.ItemID))
}

func (s *Session) handleResponseCreate(ev *realtime.ResponseCreateEvent) {
	if s.intent == realtime.IntentTranscription {
		s.sendError(realtime.NewError(realtime.ErrUnsupportedIntent,
			"transcription sessions do not generate responses"), ev.EventID)
		return
	}
	if s.providers.LLM == nil {
		s.sendError(realtime.NewError(realtime.ErrInternal, "no completion backend configured"), ev.EventID)
		return
	}
	if s.active != nil {
		s.sendError(realtime.Errorf(realtime.ErrResponseAlreadyActive,
			"response %s is still active", s.active.id), ev.EventID)
		return
	}
	eff, err := ev.Response.Apply(s.cfg)
	if err != nil {
		s.sendError(err, ev.EventID)
		return
	}
	s.startResponse(eff)
}

func (s *Session) handleResponseCancel(ev *realtime.ResponseCancelEvent) {
	if s.active == nil {
		s.sendError(realtime.NewError(realtime.ErrInvalidRequest, "no response is active"), ev.EventID)
		return
	}
	if ev.ResponseID != "" && ev.ResponseID != s.active.id {
		s.sendError(realtime.Errorf(realtime.ErrInvalidRequest,
			"response %q is not active", ev.ResponseID).WithParam("response_id"), ev.EventID)
		return
	}
	s.cancelResponse(s.active, realtime.ReasonClientCancelled)
}
