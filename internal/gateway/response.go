package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sotto-ai/sotto/pkg/audio"
	"github.com/sotto-ai/sotto/pkg/provider/llm"
	"github.com/sotto-ai/sotto/pkg/provider/upstream"
	"github.com/sotto-ai/sotto/pkg/realtime"
	"github.com/sotto-ai/sotto/pkg/types"
)

// Stage watchdogs for a running response. The completion timer re-arms on
// every chunk; the synthesis timer arms once the first sentence has been
// handed to the backend and re-arms on every audio chunk.
const (
	defaultSTTTimeout     = 30 * time.Second
	defaultLLMIdleTimeout = 20 * time.Second
	defaultTTSIdleTimeout = 15 * time.Second
)

// maxSentenceRun flushes buffered text to synthesis once it grows this long
// without a sentence boundary, so unpunctuated output is not held back
// indefinitely.
const maxSentenceRun = 120

// responseRun is the actor-side record of one response. The resource, the
// lazily created message item and the pending tool calls are owned by the
// session actor: pipeline goroutines never touch them directly, they post
// closures that do. terminal flips exactly once, in whichever closure ends
// the run, and every closure posted after that returns early.
type responseRun struct {
	id      string
	cfg     *realtime.Session
	started time.Time

	resource *realtime.Response
	// refs snapshots the item ids the run read as input. Deleting one of
	// them while the run is live is rejected.
	refs map[string]struct{}
	// audio reports whether the run synthesizes speech.
	audio bool

	msg    *realtime.Item
	msgRef realtime.PartRef
	calls  map[int]*pendingCall

	cancel   context.CancelFunc
	terminal bool
}

// pendingCall tracks one streamed function call by its delta index.
type pendingCall struct {
	item *realtime.Item
	ref  realtime.CallRef
}

func (r *responseRun) references(itemID string) bool {
	_, ok := r.refs[itemID]
	return ok
}

// startResponse snapshots the conversation, emits response.created and
// launches the pipeline. The caller has already checked that no response is
// active and that the session intent allows one.
func (s *Session) startResponse(eff *realtime.Session) {
	history := s.conv.ProjectHistory()
	refs := make(map[string]struct{}, s.conv.Len())
	for _, id := range s.conv.IDs() {
		refs[id] = struct{}{}
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	r := &responseRun{
		id:      NewResponseID(),
		cfg:     eff,
		started: time.Now(),
		refs:    refs,
		audio:   eff.HasModality(realtime.ModalityAudio) && s.providers.TTS != nil,
		calls:   make(map[int]*pendingCall),
		cancel:  cancel,
	}
	r.resource = realtime.NewResponse(r.id)
	s.active = r
	if s.observer.Started != nil {
		s.observer.Started()
	}
	s.log.Info("response started", "response_id", r.id, "items", len(history), "audio", r.audio)
	s.emit(realtime.NewResponseCreated(r.resource))
	s.wg.Add(1)
	go s.runResponse(runCtx, r, history)
}

// runResponse drives the completion and synthesis stages and posts the
// terminal closure when both settle. It never touches actor state itself.
func (s *Session) runResponse(ctx context.Context, r *responseRun, history []types.Message) {
	defer s.wg.Done()

	stream, err := s.providers.LLM.StreamCompletion(ctx, buildCompletionRequest(r.cfg, history))
	if err != nil {
		werr := upstream.Wrap(upstream.StageLLM, err)
		s.post(func() { s.failResponse(r, werr) })
		return
	}

	var (
		finish string
		usage  *types.TokenUsage
	)
	g, gctx := errgroup.WithContext(ctx)
	var textCh chan string
	flushed := make(chan struct{})
	if r.audio {
		textCh = make(chan string, 16)
		g.Go(func() error { return s.runSynthesis(gctx, r, textCh, flushed) })
	}
	g.Go(func() error {
		if textCh != nil {
			defer close(textCh)
		}
		var err error
		finish, usage, err = s.runCompletion(gctx, r, stream, textCh, flushed)
		return err
	})

	err = g.Wait()
	if ctx.Err() != nil {
		// Cancelled by the actor or by session teardown. The terminal
		// events, if any, were already emitted there.
		return
	}
	if err != nil {
		s.post(func() { s.failResponse(r, err) })
		return
	}
	s.post(func() { s.completeResponse(r, finish, usage) })
}

// runCompletion drains the model stream, posting delta closures and feeding
// completed sentences to synthesis. It keeps reading past the finish reason
// because some backends trail the usage chunk after it.
func (s *Session) runCompletion(ctx context.Context, r *responseRun, stream <-chan llm.Chunk, textCh chan<- string, flushed chan<- struct{}) (finish string, usage *types.TokenUsage, err error) {
	split := &sentenceSplitter{max: maxSentenceRun}
	sent := false
	send := func(text string) error {
		if textCh == nil || text == "" {
			return nil
		}
		select {
		case textCh <- text:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !sent {
			sent = true
			close(flushed)
		}
		return nil
	}

	idle := time.NewTimer(s.llmIdle)
	defer idle.Stop()
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return finish, usage, send(split.Flush())
			}
			resetTimer(idle, s.llmIdle)
			if chunk.Usage != nil {
				u := *chunk.Usage
				usage = &u
			}
			if chunk.FinishReason == llm.FinishError {
				msg := chunk.Text
				if msg == "" {
					msg = "model stream failed"
				}
				return "", usage, upstream.Wrap(upstream.StageLLM, errors.New(msg))
			}
			if chunk.Text != "" {
				delta := chunk.Text
				s.postRun(r, func() { s.appendTextDelta(r, delta) })
				for _, sentence := range split.Push(delta) {
					if err := send(sentence); err != nil {
						return finish, usage, err
					}
				}
			}
			for _, tc := range chunk.ToolCalls {
				s.postRun(r, func() { s.appendToolCallDelta(r, tc) })
			}
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
		case <-idle.C:
			return finish, usage, upstream.Wrap(upstream.StageLLM,
				realtime.Errorf(realtime.ErrUpstreamTimeout, "no completion delta within %v", s.llmIdle))
		case <-ctx.Done():
			return finish, usage, ctx.Err()
		}
	}
}

// runSynthesis pipes sentence fragments into the TTS backend and posts its
// audio back as fixed 20 ms frames. Per the provider contract both channels
// close when synthesis ends, with the error channel carrying at most the
// first failure.
func (s *Session) runSynthesis(ctx context.Context, r *responseRun, textCh <-chan string, flushed <-chan struct{}) error {
	audioCh, errCh, err := s.providers.TTS.SynthesizeStream(ctx, textCh, types.VoiceProfile{ID: r.cfg.Voice})
	if err != nil {
		return upstream.Wrap(upstream.StageTTS, err)
	}

	framer := audio.NewFramer(audio.FrameBytes(sampleRate, frameDuration))
	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()
	for {
		select {
		case <-flushed:
			flushed = nil
			idle = time.NewTimer(s.ttsIdle)
			idleC = idle.C
		case pcm, ok := <-audioCh:
			if !ok {
				if tail := framer.Flush(); len(tail) > 0 {
					s.postRun(r, func() { s.appendAudioDelta(r, tail) })
				}
				if err := <-errCh; err != nil {
					return upstream.Wrap(upstream.StageTTS, err)
				}
				return nil
			}
			if idle != nil {
				resetTimer(idle, s.ttsIdle)
			}
			for _, frame := range framer.Push(pcm) {
				s.postRun(r, func() { s.appendAudioDelta(r, frame) })
			}
		case err := <-errCh:
			if err != nil {
				return upstream.Wrap(upstream.StageTTS, err)
			}
			errCh = nil
		case <-idleC:
			return upstream.Wrap(upstream.StageTTS,
				realtime.Errorf(realtime.ErrUpstreamTimeout, "no synthesized audio within %v", s.ttsIdle))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// postRun schedules f on the actor unless the run already terminated. The
// guard itself runs on the actor, so terminal is read safely.
func (s *Session) postRun(r *responseRun, f func()) {
	s.post(func() {
		if r.terminal {
			return
		}
		f()
	})
}

// ensureMessageItem materializes the run's message item on the first delta.
// Audio runs stream one audio part whose transcript carries the text;
// text-only runs stream one text part.
func (s *Session) ensureMessageItem(r *responseRun) {
	if r.msg != nil {
		return
	}
	partType := realtime.PartTypeText
	if r.audio {
		partType = realtime.PartTypeAudio
	}
	item := &realtime.Item{
		ID:      NewItemID(),
		Object:  realtime.ObjectItem,
		Type:    realtime.ItemTypeMessage,
		Status:  realtime.ItemStatusInProgress,
		Role:    realtime.RoleAssistant,
		Content: []realtime.ContentPart{{Type: partType}},
	}
	idx := len(r.resource.Output)
	r.resource.Output = append(r.resource.Output, item)
	r.msg = item
	r.msgRef = realtime.PartRef{ResponseID: r.id, ItemID: item.ID, OutputIndex: idx, ContentIndex: 0}
	s.emit(realtime.NewResponseOutputItemAdded(r.id, idx, item.WithoutAudio()))
	s.emit(realtime.NewResponseContentPartAdded(r.msgRef, realtime.ContentPart{Type: partType}))
}

func (s *Session) appendTextDelta(r *responseRun, delta string) {
	s.ensureMessageItem(r)
	part := &r.msg.Content[0]
	if r.audio {
		part.Transcript += delta
		s.emit(realtime.NewResponseAudioTranscriptDelta(r.msgRef, delta))
		return
	}
	part.Text += delta
	s.emit(realtime.NewResponseTextDelta(r.msgRef, delta))
}

func (s *Session) appendAudioDelta(r *responseRun, pcm []byte) {
	s.ensureMessageItem(r)
	part := &r.msg.Content[0]
	part.PCM = append(part.PCM, pcm...)
	s.emit(realtime.NewResponseAudioDelta(r.msgRef, base64.StdEncoding.EncodeToString(pcm)))
}

func (s *Session) appendToolCallDelta(r *responseRun, d llm.ToolCallDelta) {
	pc, ok := r.calls[d.Index]
	if !ok {
		callID := d.ID
		if callID == "" {
			callID = NewCallID()
		}
		item := &realtime.Item{
			ID:     NewItemID(),
			Object: realtime.ObjectItem,
			Type:   realtime.ItemTypeFunctionCall,
			Status: realtime.ItemStatusInProgress,
			CallID: callID,
			Name:   d.Name,
		}
		idx := len(r.resource.Output)
		r.resource.Output = append(r.resource.Output, item)
		pc = &pendingCall{
			item: item,
			ref:  realtime.CallRef{ResponseID: r.id, ItemID: item.ID, OutputIndex: idx, CallID: callID},
		}
		r.calls[d.Index] = pc
		s.emit(realtime.NewResponseOutputItemAdded(r.id, idx, item.WithoutAudio()))
	} else if d.Name != "" && pc.item.Name == "" {
		pc.item.Name = d.Name
	}
	if d.Arguments != "" {
		pc.item.Arguments += d.Arguments
		s.emit(realtime.NewResponseFunctionCallArgumentsDelta(pc.ref, d.Arguments))
	}
}

// completeResponse settles a naturally ended run: every output item gets its
// done events in stream order, the output lands in the conversation, and the
// terminal event carries the final resource.
func (s *Session) completeResponse(r *responseRun, finish string, usage *types.TokenUsage) {
	if r.terminal {
		return
	}
	status := realtime.ResponseStatusCompleted
	var details *realtime.StatusDetails
	switch finish {
	case llm.FinishLength:
		status = realtime.ResponseStatusIncomplete
		details = &realtime.StatusDetails{Type: string(status), Reason: realtime.ReasonMaxOutputTokens}
	case llm.FinishContentFilter:
		status = realtime.ResponseStatusIncomplete
		details = &realtime.StatusDetails{Type: string(status), Reason: realtime.ReasonContentFilter}
	}

	for i, it := range r.resource.Output {
		it.Status = realtime.ItemStatusCompleted
		switch it.Type {
		case realtime.ItemTypeMessage:
			ref := realtime.PartRef{ResponseID: r.id, ItemID: it.ID, OutputIndex: i, ContentIndex: 0}
			part := it.Content[0]
			if part.Type == realtime.PartTypeAudio {
				s.emit(realtime.NewResponseAudioDone(ref))
				s.emit(realtime.NewResponseAudioTranscriptDone(ref, part.Transcript))
			} else {
				s.emit(realtime.NewResponseTextDone(ref, part.Text))
			}
			part.PCM, part.Audio = nil, ""
			s.emit(realtime.NewResponseContentPartDone(ref, part))
		case realtime.ItemTypeFunctionCall:
			ref := realtime.CallRef{ResponseID: r.id, ItemID: it.ID, OutputIndex: i, CallID: it.CallID}
			s.emit(realtime.NewResponseFunctionCallArgumentsDone(ref, it.Name, it.Arguments))
		}
		s.emit(realtime.NewResponseOutputItemDone(r.id, i, it.WithoutAudio()))
	}

	s.settleResponse(r, status, details, usage)
	s.log.Info("response completed", "response_id", r.id, "status", status, "output_items", len(r.resource.Output))
	s.emit(realtime.NewResponseDone(r.resource.WithoutAudio()))
}

// failResponse settles a run whose pipeline errored. Partial items stay in
// the conversation marked incomplete so the client can reconcile what it
// already rendered.
func (s *Session) failResponse(r *responseRun, err error) {
	if r.terminal {
		return
	}
	pe := upstreamError(err)
	s.log.Warn("response failed", "response_id", r.id, "code", pe.Kind, "error", err)
	for _, it := range r.resource.Output {
		it.Status = realtime.ItemStatusIncomplete
	}
	payload := pe.Payload("")
	s.settleResponse(r, realtime.ResponseStatusFailed, &realtime.StatusDetails{
		Type:  string(realtime.ResponseStatusFailed),
		Error: &payload,
	}, nil)
	s.emit(realtime.NewResponseFailed(r.resource.WithoutAudio()))
}

// cancelResponse settles the active run synchronously on the actor: the
// resource reflects exactly the deltas already delivered, partial items stay
// in the conversation marked incomplete, and the pipeline goroutines are
// cancelled only after terminal is set, so no late delta can follow the
// terminal event.
func (s *Session) cancelResponse(r *responseRun, reason string) {
	if r.terminal {
		return
	}
	s.log.Info("response cancelled", "response_id", r.id, "reason", reason)
	for _, it := range r.resource.Output {
		it.Status = realtime.ItemStatusIncomplete
	}
	s.settleResponse(r, realtime.ResponseStatusCancelled, &realtime.StatusDetails{
		Type:   string(realtime.ResponseStatusCancelled),
		Reason: reason,
	}, nil)
	s.emit(realtime.NewResponseCancelled(r.resource.WithoutAudio()))
}

// settleResponse appends the run's output to the conversation, stamps the
// terminal status and usage, and releases the active slot.
func (s *Session) settleResponse(r *responseRun, status realtime.ResponseStatus, details *realtime.StatusDetails, usage *types.TokenUsage) {
	r.terminal = true
	for _, it := range r.resource.Output {
		if _, err := s.conv.Append(it); err != nil {
			s.log.Error("response output rejected by conversation", "item_id", it.ID, "error", err)
		}
	}
	r.resource.Status = status
	r.resource.StatusDetails = details
	u := &realtime.Usage{}
	if usage != nil {
		u.TotalTokens, u.InputTokens, u.OutputTokens = usage.TotalTokens, usage.InputTokens, usage.OutputTokens
	}
	r.resource.Usage = u
	r.cancel()
	if s.active == r {
		s.active = nil
	}
	s.notifySettled(r, status)
}

// notifySettled reports a terminal response to the observer.
func (s *Session) notifySettled(r *responseRun, status realtime.ResponseStatus) {
	if s.observer.Settled != nil {
		s.observer.Settled(string(status), time.Since(r.started))
	}
}

// upstreamError converts a pipeline error into a protocol error, preferring
// the classification recorded at the provider boundary.
func upstreamError(err error) *realtime.Error {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return realtime.NewError(ue.Kind, ue.Error())
	}
	return realtime.AsError(err)
}

// buildCompletionRequest maps the effective configuration and the projected
// history onto the provider-neutral completion request. Tool choice is only
// meaningful when tools are offered.
func buildCompletionRequest(cfg *realtime.Session, history []types.Message) llm.CompletionRequest {
	req := llm.CompletionRequest{
		Messages:     history,
		Temperature:  cfg.Temperature,
		MaxTokens:    int(cfg.MaxResponseOutputTokens.Limit()),
		SystemPrompt: cfg.Instructions,
	}
	if len(cfg.Tools) == 0 {
		return req
	}
	req.Tools = make([]types.ToolDefinition, len(cfg.Tools))
	for i, t := range cfg.Tools {
		req.Tools[i] = types.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	switch cfg.ToolChoice.Mode {
	case realtime.ToolChoiceFunction:
		req.ToolChoice = cfg.ToolChoice.Name
	case "":
		req.ToolChoice = realtime.ToolChoiceAuto
	default:
		req.ToolChoice = cfg.ToolChoice.Mode
	}
	return req
}

// ─── sentence splitting ───

// sentenceSplitter accumulates streamed text and cuts it at sentence
// boundaries for synthesis. A boundary is '.', '!' or '?' immediately
// followed by whitespace; fragments longer than max flush as-is.
type sentenceSplitter struct {
	buf string
	max int
}

// Push appends streamed text and returns the completed fragments, in order.
func (sp *sentenceSplitter) Push(text string) []string {
	sp.buf += text
	var out []string
	for {
		idx := firstSentenceBoundary(sp.buf)
		if idx < 0 {
			if sp.max > 0 && len(sp.buf) >= sp.max {
				cut := runFloor(sp.buf, sp.max)
				out = append(out, sp.buf[:cut])
				sp.buf = sp.buf[cut:]
				continue
			}
			return out
		}
		sentence := sp.buf[:idx+1]
		sp.buf = strings.TrimLeft(sp.buf[idx+1:], " \t\n\r")
		out = append(out, sentence)
	}
}

// Flush returns whatever remains buffered, trimmed of surrounding space.
func (sp *sentenceSplitter) Flush() string {
	rest := strings.TrimSpace(sp.buf)
	sp.buf = ""
	return rest
}

// firstSentenceBoundary returns the index of the first '.', '!' or '?' that
// is immediately followed by a whitespace character, or -1.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

// runFloor returns max backed off to the nearest rune start, so a forced
// flush never splits a UTF-8 sequence.
func runFloor(s string, max int) int {
	if max >= len(s) {
		return len(s)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
