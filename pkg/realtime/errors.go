package realtime

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable error code carried in error events and
// failed responses.
type ErrorKind string

const (
	// ErrInvalidRequest covers malformed or semantically invalid client
	// events.
	ErrInvalidRequest ErrorKind = "invalid_request"
	// ErrInvalidItem covers structurally invalid conversation items.
	ErrInvalidItem ErrorKind = "invalid_item"
	// ErrItemNotFound is returned when an item id does not resolve.
	ErrItemNotFound ErrorKind = "item_not_found"
	// ErrItemReferenced rejects deleting an item an active response uses.
	ErrItemReferenced ErrorKind = "item_referenced"
	// ErrResponseAlreadyActive rejects response.create while one runs.
	ErrResponseAlreadyActive ErrorKind = "response_already_active"
	// ErrUnsupportedIntent rejects operations the session intent forbids.
	ErrUnsupportedIntent ErrorKind = "unsupported_intent"
	// ErrInputAudioBufferOverrun rejects appends past the buffer capacity.
	ErrInputAudioBufferOverrun ErrorKind = "input_audio_buffer_overrun"
	// ErrUpstreamUnavailable reports an unreachable or failing backend.
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"
	// ErrUpstreamTimeout reports an expired per-call backend deadline.
	ErrUpstreamTimeout ErrorKind = "upstream_timeout"
	// ErrRateLimited reports backend throttling.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrInternal reports an unexpected server fault.
	ErrInternal ErrorKind = "internal"
)

// Class returns the coarse wire error type for the kind.
func (k ErrorKind) Class() string {
	switch k {
	case ErrRateLimited:
		return "rate_limit_error"
	case ErrUpstreamUnavailable, ErrUpstreamTimeout, ErrInternal:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

// Error is a protocol error. It travels internally as a Go error and maps
// onto the wire payload of error events and failed responses.
type Error struct {
	Kind    ErrorKind
	Message string
	// Param optionally names the offending field.
	Param string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a protocol error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a protocol error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithParam returns a copy of the error naming the offending field.
func (e *Error) WithParam(param string) *Error {
	out := *e
	out.Param = param
	return &out
}

// AsError coerces any error into a protocol error. Unknown errors become
// ErrInternal so a kind is always available for the wire.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: ErrInternal, Message: err.Error()}
}

// ErrorPayload is the wire representation of an error.
type ErrorPayload struct {
	// Type is the coarse class, e.g. "invalid_request_error".
	Type string `json:"type"`
	// Code is the fine-grained kind.
	Code ErrorKind `json:"code,omitempty"`
	// Message is human-readable detail.
	Message string `json:"message"`
	// Param names the offending field when known.
	Param string `json:"param,omitempty"`
	// EventID references the client event that caused the error.
	EventID string `json:"event_id,omitempty"`
}

// Payload maps the error onto its wire shape. causeEventID may be empty
// when the offending client event carried no id.
func (e *Error) Payload(causeEventID string) ErrorPayload {
	return ErrorPayload{
		Type:    e.Kind.Class(),
		Code:    e.Kind,
		Message: e.Message,
		Param:   e.Param,
		EventID: causeEventID,
	}
}
