// Package upstream classifies provider failures into the protocol's error
// kinds. The response pipeline wraps every STT, LLM and TTS call through this
// package so a failed response can report whether the backend timed out, was
// throttled, or was simply unreachable.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"

	oai "github.com/openai/openai-go"

	"github.com/sotto-ai/sotto/pkg/realtime"
)

// Stage names the pipeline stage a provider error originated from.
type Stage string

const (
	// StageSTT is the transcription stage.
	StageSTT Stage = "stt"
	// StageLLM is the completion stage.
	StageLLM Stage = "llm"
	// StageTTS is the synthesis stage.
	StageTTS Stage = "tts"
)

// HTTPError records a non-success status returned by a provider's HTTP
// backend. Provider adapters return it from their status checks so that
// Classify can map throttling and server faults without parsing message text.
type HTTPError struct {
	// Provider is the adapter name, used as the error prefix.
	Provider string
	// Status is the HTTP status code.
	Status int
	// Body holds a snippet of the response body, if any.
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: request returned status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: request returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Error couples a pipeline stage with the classified kind and the causing
// provider error. It satisfies errors.Unwrap so callers can still reach the
// underlying SDK error.
type Error struct {
	Stage Stage
	Kind  realtime.ErrorKind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and tags it with the originating stage. A nil err
// returns nil, and an already-wrapped error is returned unchanged so the
// first classification wins.
func Wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return err
	}
	return &Error{Stage: stage, Kind: Classify(err), Err: err}
}

// Kind returns the protocol error kind for err, honoring a prior Wrap.
func Kind(err error) realtime.ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return Classify(err)
}

// Classify maps a provider error to the protocol error kind:
//
//   - expired deadlines and network timeouts map to upstream_timeout
//   - HTTP 429 (and 408) from a backend maps to rate_limited (upstream_timeout)
//   - everything else maps to upstream_unavailable
//
// Cancellation should be handled by the caller before classifying; a
// context.Canceled passed here reads as unavailability. Protocol errors
// (realtime.Error) pass through with their own kind.
func Classify(err error) realtime.ErrorKind {
	var pe *realtime.Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return realtime.ErrUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return realtime.ErrUpstreamTimeout
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.StatusCode)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return kindForStatus(httpErr.Status)
	}

	return realtime.ErrUpstreamUnavailable
}

func kindForStatus(status int) realtime.ErrorKind {
	switch status {
	case 429:
		return realtime.ErrRateLimited
	case 408:
		return realtime.ErrUpstreamTimeout
	default:
		return realtime.ErrUpstreamUnavailable
	}
}
