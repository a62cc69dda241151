// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled Transcript values and inspect which audio
// the caller submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{
//	    Transcript: &types.Transcript{Text: "hello world"},
//	}
//	tr, err := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/sotto-ai/sotto/pkg/provider/stt"
	"github.com/sotto-ai/sotto/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Req.PCM is a copy of the
	// original audio bytes.
	Req stt.TranscribeRequest
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an empty Transcript and nil error.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe. If nil, an empty Transcript is
	// returned instead.
	Transcript *types.Transcript

	// Script, if non-empty, overrides Transcript per call: the first
	// Transcribe returns Script[0], the second Script[1], and so on. Calls
	// beyond the script fall back to Transcript.
	Script []*types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Delay, if non-zero, makes Transcribe block for the given duration or
	// until ctx is cancelled, whichever comes first. Use this to test
	// transcription timeouts and cancellation.
	Delay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	scriptNext int
}

// Transcribe records the call and returns the scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, req stt.TranscribeRequest) (*types.Transcript, error) {
	p.mu.Lock()
	cp := req
	cp.PCM = make([]byte, len(req.PCM))
	copy(cp.PCM, req.PCM)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: cp})

	result := p.Transcript
	if p.scriptNext < len(p.Script) {
		result = p.Script[p.scriptNext]
		p.scriptNext++
	}
	err := p.TranscribeErr
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if result == nil {
		return &types.Transcript{}, nil
	}
	out := *result
	return &out, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.scriptNext = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
