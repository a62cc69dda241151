package resilience

import (
	"context"

	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// ttsStream bundles the two channels returned by a synthesis stream so they fit
// through the single-result failover helper.
type ttsStream struct {
	audio <-chan []byte
	errs  <-chan error
}

// SynthesizeStream consumes text fragments and returns audio chunks, trying the
// first healthy provider. Only the initial stream setup is covered by failover;
// mid-stream errors are reported on the error channel and are the caller's
// responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan error, error) {
	s, err := ExecuteWithResult(f.group, func(p tts.Provider) (ttsStream, error) {
		audio, errs, err := p.SynthesizeStream(ctx, text, voice)
		return ttsStream{audio: audio, errs: errs}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return s.audio, s.errs, nil
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
