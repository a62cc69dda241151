// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (an energy gate, Silero
// VAD, or a custom model) and surfaces it as a stateful, per-stream session.
// Each session maintains its own internal state (sample position, run
// counters, smoothing history) so that multiple concurrent audio streams can
// be processed independently.
//
// Detection is synchronous: ProcessFrame returns immediately with a result,
// so it can run on the session actor's inline audio path where turn edges
// gate commits and responses.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "time"

// EventType classifies the outcome of processing one frame.
type EventType string

const (
	// EventNone means the frame produced no edge.
	EventNone EventType = "none"
	// EventSpeechStart confirms a speech onset.
	EventSpeechStart EventType = "speech_start"
	// EventSpeechEnd confirms the end of a speech run.
	EventSpeechEnd EventType = "speech_end"
)

// Event is the detection result for a single frame.
type Event struct {
	// Type reports the detected edge, if any.
	Type EventType

	// Offset is the sample position of the edge relative to the start of
	// the session (or the last Reset). For EventSpeechStart it is backdated
	// to the beginning of the confirmation window so onsets are not
	// clipped; for EventSpeechEnd it marks the first silent sample after
	// the speech run. Zero when Type is EventNone.
	Offset int

	// Probability is the speech likelihood of the processed frame in
	// [0.0, 1.0], regardless of whether an edge fired.
	Probability float64
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM16 frames passed to ProcessFrame.
	SampleRate int

	// FrameDuration is the nominal duration of each audio frame. Sessions
	// track their position by the samples actually fed, so shorter or
	// longer frames shift edge granularity but not correctness. Typical:
	// 20 ms.
	FrameDuration time.Duration

	// Threshold is the speech probability above which a frame is classified
	// as speech. Range: [0.0, 1.0]. Higher values reduce false positives at
	// the cost of increased onset latency. Typical: 0.5.
	Threshold float64

	// PrefixPadding is how long frames must stay above Threshold before a
	// speech onset is confirmed. The confirmed onset is backdated by the
	// same window. Typical: 300 ms.
	PrefixPadding time.Duration

	// SilenceDuration is how long frames must stay below Threshold before
	// an active speech run is considered ended. Typical: 500 ms.
	SilenceDuration time.Duration
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Each session maintains its own detection state;
// Reset clears this state without closing the session.
//
// A SessionHandle must not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of raw little-endian PCM16 at
	// the configured sample rate and returns the detection result. Called
	// synchronously in the session actor's audio path; it must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears all accumulated detection state and rewinds the sample
	// position to 0. Use this when the un-committed audio stream is
	// discarded so stale state from the previous segment cannot affect
	// subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After
	// Close, ProcessFrame returns an error and Reset is a no-op. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// The session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, threshold out of range) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
