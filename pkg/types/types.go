// Package types holds the shared data structures passed between sotto's
// provider interfaces and the session pipeline. Providers accept and return
// these types so that transcription, completion and synthesis backends stay
// interchangeable.
package types

import "time"

// Transcript is the result of transcribing a region of input audio.
type Transcript struct {
	// Text is the transcribed text.
	Text string
	// Confidence is the overall confidence in [0, 1]. Backends that do not
	// report confidence leave it at 0.
	Confidence float64
	// Words holds optional per-word detail. May be nil when the backend
	// does not report word timings.
	Words []WordDetail
	// Language is the detected or requested BCP-47 language tag, if known.
	Language string
	// Duration is the length of the audio that produced this transcript.
	Duration time.Duration
}

// WordDetail describes a single recognized word with timing information.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Message is a single entry in a model conversation.
type Message struct {
	// Role is one of "system", "user", "assistant" or "tool".
	Role string
	// Content is the textual content. For assistant messages that carry
	// tool calls it may be empty.
	Content string
	// ToolCalls holds the calls requested by an assistant message.
	ToolCalls []ToolCall
	// ToolCallID links a tool message to the assistant call it answers.
	ToolCallID string
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	// ID identifies the call so its output can be matched back.
	ID string
	// Name is the function name.
	Name string
	// Arguments is the raw JSON argument payload.
	Arguments string
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	// Name is the function name exposed to the model.
	Name string
	// Description tells the model when the function applies.
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// VoiceProfile selects and shapes a synthesis voice.
type VoiceProfile struct {
	// ID is the backend-specific voice identifier.
	ID string
	// Name is a human-readable label.
	Name string
	// Provider names the backend that owns the voice.
	Provider string
	// SpeedFactor scales speaking rate. 1.0 is normal speed; 0 means
	// "use the backend default".
	SpeedFactor float64
	// Metadata carries backend-specific tuning that does not warrant a
	// first-class field.
	Metadata map[string]string
}

// TokenUsage reports token consumption for a single model call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}
