// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI audio API,
// Deepgram, or a local Whisper build) and exposes a uniform batch interface:
// one committed stretch of PCM audio in, one authoritative Transcript out.
// The session pipeline calls Transcribe once per committed user turn, so
// providers are sized for utterance-length audio (a few seconds to half a
// minute), not open-ended streams.
//
// Implementations must be safe for concurrent use. Multiple sessions may
// transcribe simultaneously through the same Provider.
package stt

import (
	"context"

	"github.com/sotto-ai/sotto/pkg/types"
)

// TranscribeRequest describes one utterance to transcribe.
type TranscribeRequest struct {
	// PCM is the raw audio: 16-bit little-endian signed mono samples.
	PCM []byte

	// SampleRate is the audio sample rate in Hz. The session pipeline always
	// sends 24000; providers resample internally when their backend needs a
	// different rate.
	SampleRate int

	// Model selects the transcription model (e.g., "whisper-1"). An empty
	// string uses the provider's default.
	Model string

	// Language is the ISO-639-1 language hint (e.g., "en", "de"). An empty
	// string lets the provider auto-detect the language, if supported.
	Language string

	// Prompt is optional free text that biases recognition toward expected
	// vocabulary, such as proper nouns from earlier in the conversation.
	// Providers without prompt support ignore it.
	Prompt string
}

// Provider is the abstraction over any STT backend.
//
// Transcribe blocks until the full utterance is recognised or ctx is
// cancelled. The returned Transcript always has Text set; Words, Confidence,
// Language, and Duration are filled only when the backend reports them.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*types.Transcript, error)
}
