package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sotto-ai/sotto/pkg/types"
)

// speechRequest mirrors the JSON body of a speech endpoint call.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
	Instructions   string  `json:"instructions"`
}

// newSpeechServer returns a server that answers the speech endpoint with
// "AUDIO[<input>]" as the PCM body and records every request.
func newSpeechServer(t *testing.T) (*httptest.Server, func() []speechRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []speechRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("AUDIO[" + req.Input + "]"))
	}))
	requests := func() []speechRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]speechRequest, len(reqs))
		copy(out, reqs)
		return out
	}
	return srv, requests
}

// drainAudio reads all chunks from the audio channel until it is closed and
// returns the concatenated bytes.
func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for chunk := range ch {
		out = append(out, chunk...)
	}
	return out
}

// drainErr returns the first error from the error channel, or nil if the
// channel closed without one.
func drainErr(ch <-chan error) error {
	for err := range ch {
		return err
	}
	return nil
}

// sendFragments sends the given text fragments on a fresh channel, then
// closes it.
func sendFragments(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q; want %q", p.model, defaultModel)
	}
}

func TestSynthesizeStream_RoundTrip(t *testing.T) {
	srv, requests := newSpeechServer(t)
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audioCh, errCh, err := p.SynthesizeStream(context.Background(),
		sendFragments("Hello there.", "How are you?"),
		types.VoiceProfile{ID: "nova"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	pcm := drainAudio(audioCh)
	if err := drainErr(errCh); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	// Sequential per-fragment synthesis keeps audio in fragment order.
	want := "AUDIO[Hello there.]AUDIO[How are you?]"
	if string(pcm) != want {
		t.Errorf("audio = %q, want %q", pcm, want)
	}

	reqs := requests()
	if len(reqs) != 2 {
		t.Fatalf("server received %d requests, want 2", len(reqs))
	}
	for _, req := range reqs {
		if req.Model != defaultModel {
			t.Errorf("model = %q, want %q", req.Model, defaultModel)
		}
		if req.Voice != "nova" {
			t.Errorf("voice = %q, want nova", req.Voice)
		}
		if req.ResponseFormat != "pcm" {
			t.Errorf("response_format = %q, want pcm", req.ResponseFormat)
		}
	}
}

func TestSynthesizeStream_DefaultVoice(t *testing.T) {
	srv, requests := newSpeechServer(t)
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audioCh, errCh, err := p.SynthesizeStream(context.Background(),
		sendFragments("Hi."), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	drainAudio(audioCh)
	if err := drainErr(errCh); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server received %d requests, want 1", len(reqs))
	}
	if reqs[0].Voice != defaultVoice {
		t.Errorf("voice = %q, want %q", reqs[0].Voice, defaultVoice)
	}
}

func TestSynthesizeStream_SpeedAndInstructions(t *testing.T) {
	srv, requests := newSpeechServer(t)
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithModel("tts-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	voice := types.VoiceProfile{
		ID:          "shimmer",
		SpeedFactor: 1.25,
		Metadata:    map[string]string{"instructions": "speak softly"},
	}
	audioCh, errCh, err := p.SynthesizeStream(context.Background(),
		sendFragments("Quietly now."), voice)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	drainAudio(audioCh)
	if err := drainErr(errCh); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server received %d requests, want 1", len(reqs))
	}
	if reqs[0].Model != "tts-1" {
		t.Errorf("model = %q, want tts-1", reqs[0].Model)
	}
	if reqs[0].Speed != 1.25 {
		t.Errorf("speed = %v, want 1.25", reqs[0].Speed)
	}
	if reqs[0].Instructions != "speak softly" {
		t.Errorf("instructions = %q, want %q", reqs[0].Instructions, "speak softly")
	}
}

func TestSynthesizeStream_SkipsBlankFragments(t *testing.T) {
	srv, requests := newSpeechServer(t)
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audioCh, errCh, err := p.SynthesizeStream(context.Background(),
		sendFragments("  ", "\n"), types.VoiceProfile{ID: "alloy"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if pcm := drainAudio(audioCh); len(pcm) != 0 {
		t.Errorf("expected no audio for blank fragments, got %d bytes", len(pcm))
	}
	if err := drainErr(errCh); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got := len(requests()); got != 0 {
		t.Errorf("server received %d requests, want 0", got)
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad voice"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audioCh, errCh, err := p.SynthesizeStream(context.Background(),
		sendFragments("Hello."), types.VoiceProfile{ID: "nope"})
	if err != nil {
		t.Fatalf("SynthesizeStream start: %v", err)
	}

	if pcm := drainAudio(audioCh); len(pcm) != 0 {
		t.Errorf("expected no audio on server error, got %d bytes", len(pcm))
	}
	streamErr := drainErr(errCh)
	if streamErr == nil {
		t.Fatal("expected synthesis failure on the error channel, got nil")
	}
	if !strings.Contains(streamErr.Error(), "openai:") {
		t.Errorf("error %q missing 'openai:' prefix", streamErr.Error())
	}
}

func TestListVoices(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != len(knownVoices) {
		t.Fatalf("got %d voices, want %d", len(voices), len(knownVoices))
	}
	for i, v := range voices {
		if v.ID != knownVoices[i] {
			t.Errorf("voices[%d].ID = %q, want %q", i, v.ID, knownVoices[i])
		}
		if v.Provider != "openai" {
			t.Errorf("voices[%d].Provider = %q, want openai", i, v.Provider)
		}
	}
}
