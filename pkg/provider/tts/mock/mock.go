// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// which VoiceProfile and text fragments reach the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:           [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []types.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	audioCh, errCh, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	// Ctx is the context passed to ListVoices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
//
// The zero value consumes all text and closes both channels without emitting
// audio. Configure Chunks, Script, EchoText or the error fields to shape the
// stream. Audio from Chunks is emitted after the text channel closes so tests
// observe a deterministic ordering.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is the sequence of audio byte slices emitted on the audio
	// channel once the text channel has been fully consumed.
	Chunks [][]byte

	// Script, if non-empty, provides a different chunk set per call in
	// order. Calls beyond the script fall back to Chunks.
	Script [][][]byte

	// EchoText, if true, emits each consumed text fragment as its own audio
	// chunk ([]byte of the fragment) instead of Chunks. Useful for asserting
	// that synthesis sees exactly the streamed text, in order.
	EchoText bool

	// SynthesizeErr, if non-nil, is returned as the error from
	// SynthesizeStream instead of starting a stream.
	SynthesizeErr error

	// StreamFailure, if non-nil, is sent on the error channel after the text
	// channel is consumed, simulating a mid-synthesis backend failure.
	StreamFailure error

	// Delay, if positive, blocks the stream goroutine before any text is
	// consumed, until the delay elapses or ctx is cancelled. Useful for
	// exercising synthesis timeouts.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to SynthesizeStream in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls records every call to ListVoices in order.
	ListVoicesCalls []ListVoicesCall

	scriptNext int
	received   [][]string
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, starts a
// goroutine that consumes text and emits the configured audio.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan error, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, nil, err
	}

	src := p.Chunks
	if p.scriptNext < len(p.Script) {
		src = p.Script[p.scriptNext]
		p.scriptNext++
	}
	chunks := make([][]byte, len(src))
	copy(chunks, src)

	call := len(p.received)
	p.received = append(p.received, nil)
	echo := p.EchoText
	failure := p.StreamFailure
	delay := p.Delay
	p.mu.Unlock()

	audioCh := make(chan []byte, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(audioCh)

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					goto drained
				}
				p.mu.Lock()
				p.received[call] = append(p.received[call], fragment)
				p.mu.Unlock()
				if echo {
					select {
					case audioCh <- []byte(fragment):
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}

	drained:
		if !echo {
			for _, chunk := range chunks {
				select {
				case audioCh <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
		if failure != nil {
			errCh <- failure
		}
	}()

	return audioCh, errCh, nil
}

// ReceivedText returns a copy of the text fragments consumed by the given
// SynthesizeStream call (0-based). It is only complete once that call's
// channels have closed.
func (p *Provider) ReceivedText(call int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if call < 0 || call >= len(p.received) {
		return nil
	}
	out := make([]string, len(p.received[call]))
	copy(out, p.received[call])
	return out
}

// SynthesizeCallCount returns the number of SynthesizeStream calls recorded.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = nil
	p.received = nil
	p.scriptNext = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
