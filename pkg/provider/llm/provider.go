// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// streaming interface for the response pipeline without coupling to any
// specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/sotto-ai/sotto/pkg/types"
)

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// Tools is the set of function definitions offered to the model. The
	// model may choose to call one or more of them in its response.
	Tools []types.ToolDefinition

	// ToolChoice constrains tool use: "auto" (or empty), "none",
	// "required", or a function name to force that specific call.
	ToolChoice string

	// Temperature controls output randomness in the range [0.0, 2.0].
	// Zero means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate. Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected
	// before the conversation history. Providers without a dedicated
	// system slot prepend it as a "system"-role message.
	SystemPrompt string
}

// Finish reasons reported on the terminal chunk of a stream.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	// FinishError reports a failure after the stream started; Text carries
	// the error message.
	FinishError = "error"
)

// ToolCallDelta is one streamed fragment of a tool invocation. Fragments
// for the same Index accumulate in arrival order: ID and Name arrive on the
// first fragment, Arguments grows across fragments.
type ToolCallDelta struct {
	// Index orders parallel calls within one completion.
	Index int
	// ID identifies the call. Set on the first fragment; empty afterwards.
	ID string
	// Name is the function name. Set on the first fragment; empty
	// afterwards.
	Name string
	// Arguments is an incremental JSON fragment to append.
	Arguments string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, tool call fragments, a finish signal, usage, or any
// combination thereof.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// ToolCalls carries incremental tool call fragments.
	ToolCalls []ToolCallDelta

	// FinishReason is set once generation stops; see the Finish constants.
	// Empty on non-final chunks.
	FinishReason string

	// Usage carries token accounting when the backend reports it. Some
	// backends send it on a trailing chunk after the finish reason, so
	// consumers should record the last non-nil value they see.
	Usage *types.TokenUsage
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the
	// model responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model, fully
	// assembled.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage types.TokenUsage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return (or close its channel) as quickly as
// possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only
	// channel that emits Chunk values as they arrive. The channel is
	// closed by the implementation when generation finishes or when ctx is
	// cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that
	// occur after the channel is opened are surfaced as a Chunk with
	// FinishReason FinishError; the initial error return is non-nil only
	// for failures that prevent the stream from starting (e.g., invalid
	// credentials, malformed request).
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response. It
	// is a convenience wrapper around StreamCompletion for callers that do
	// not need incremental output and do not want to manage a channel.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
