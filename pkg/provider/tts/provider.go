// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the OpenAI audio
// API or ElevenLabs) and presents a uniform streaming interface. The primary
// entry point is SynthesizeStream, which accepts a channel of text fragments
// and returns a channel of raw PCM audio bytes as they become available,
// enabling low-latency pipelining between LLM output and the client.
//
// All providers emit 16-bit little-endian signed mono PCM at 24 kHz, the
// session wire format, resampling internally when their backend produces a
// different rate.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/sotto-ai/sotto/pkg/types"
)

// SampleRate is the output sample rate in Hz shared by all providers.
const SampleRate = 24000

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., several sessions responding at once).
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised. This design allows the caller to pipe LLM streaming output
	// directly into synthesis without waiting for the full text.
	//
	// Both returned channels are closed by the implementation when all text
	// has been synthesised, when a synthesis error occurs, or when ctx is
	// cancelled. The error channel is buffered and carries at most one value:
	// the first error that stopped synthesis. The caller must drain the audio
	// channel to avoid blocking the provider's internal goroutines.
	//
	// voice specifies the voice profile to use for synthesis. Providers
	// return an error from the audio stream if the requested voice is not
	// available.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan error, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	//
	// Returns an error if the provider cannot be reached or if ctx is
	// cancelled before the list is retrieved.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
