package realtime

import (
	"encoding/json"
	"fmt"
)

// SessionUpdateEvent patches the session configuration. The patch is kept
// raw so the merge can distinguish absent keys, explicit nulls and values.
type SessionUpdateEvent struct {
	EventBase
	Session json.RawMessage `json:"session"`
}

func (*SessionUpdateEvent) ClientEventType() string { return TypeSessionUpdate }

// NewSessionUpdate builds a session.update event from any JSON-marshalable
// patch value.
func NewSessionUpdate(patch any) (*SessionUpdateEvent, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal session patch: %w", err)
	}
	return &SessionUpdateEvent{
		EventBase: EventBase{Type: TypeSessionUpdate},
		Session:   raw,
	}, nil
}

// InputAudioBufferAppendEvent appends base64 PCM16 to the input buffer.
type InputAudioBufferAppendEvent struct {
	EventBase
	Audio string `json:"audio"`
}

func (*InputAudioBufferAppendEvent) ClientEventType() string { return TypeInputAudioBufferAppend }

// NewInputAudioBufferAppend builds an append event from base64 audio.
func NewInputAudioBufferAppend(audio string) *InputAudioBufferAppendEvent {
	return &InputAudioBufferAppendEvent{
		EventBase: EventBase{Type: TypeInputAudioBufferAppend},
		Audio:     audio,
	}
}

// InputAudioBufferCommitEvent seals the pending buffer region into a user
// message item.
type InputAudioBufferCommitEvent struct {
	EventBase
}

func (*InputAudioBufferCommitEvent) ClientEventType() string { return TypeInputAudioBufferCommit }

// NewInputAudioBufferCommit builds a commit event.
func NewInputAudioBufferCommit() *InputAudioBufferCommitEvent {
	return &InputAudioBufferCommitEvent{EventBase: EventBase{Type: TypeInputAudioBufferCommit}}
}

// InputAudioBufferClearEvent drops un-committed buffered audio.
type InputAudioBufferClearEvent struct {
	EventBase
}

func (*InputAudioBufferClearEvent) ClientEventType() string { return TypeInputAudioBufferClear }

// NewInputAudioBufferClear builds a clear event.
func NewInputAudioBufferClear() *InputAudioBufferClearEvent {
	return &InputAudioBufferClearEvent{EventBase: EventBase{Type: TypeInputAudioBufferClear}}
}

// ConversationItemCreateEvent inserts an item into the conversation log.
type ConversationItemCreateEvent struct {
	EventBase
	// PreviousItemID positions the item: empty appends at the end, "root"
	// inserts at the head, any other value inserts after that item.
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           *Item  `json:"item"`
}

func (*ConversationItemCreateEvent) ClientEventType() string { return TypeConversationItemCreate }

// NewConversationItemCreate builds a create event appending at the end.
func NewConversationItemCreate(item *Item) *ConversationItemCreateEvent {
	return &ConversationItemCreateEvent{
		EventBase: EventBase{Type: TypeConversationItemCreate},
		Item:      item,
	}
}

// ConversationItemTruncateEvent shortens a played-back assistant audio part.
type ConversationItemTruncateEvent struct {
	EventBase
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func (*ConversationItemTruncateEvent) ClientEventType() string { return TypeConversationItemTruncate }

// NewConversationItemTruncate builds a truncate event.
func NewConversationItemTruncate(itemID string, contentIndex, audioEndMs int) *ConversationItemTruncateEvent {
	return &ConversationItemTruncateEvent{
		EventBase:    EventBase{Type: TypeConversationItemTruncate},
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	}
}

// ConversationItemDeleteEvent removes an item from the conversation log.
type ConversationItemDeleteEvent struct {
	EventBase
	ItemID string `json:"item_id"`
}

func (*ConversationItemDeleteEvent) ClientEventType() string { return TypeConversationItemDelete }

// NewConversationItemDelete builds a delete event.
func NewConversationItemDelete(itemID string) *ConversationItemDeleteEvent {
	return &ConversationItemDeleteEvent{
		EventBase: EventBase{Type: TypeConversationItemDelete},
		ItemID:    itemID,
	}
}

// ResponseCreateEvent asks the server to generate a response.
type ResponseCreateEvent struct {
	EventBase
	// Response optionally overrides session configuration for this
	// response only.
	Response *ResponseOverrides `json:"response,omitempty"`
}

func (*ResponseCreateEvent) ClientEventType() string { return TypeResponseCreate }

// NewResponseCreate builds a response.create event.
func NewResponseCreate(overrides *ResponseOverrides) *ResponseCreateEvent {
	return &ResponseCreateEvent{
		EventBase: EventBase{Type: TypeResponseCreate},
		Response:  overrides,
	}
}

// ResponseCancelEvent cancels the active response.
type ResponseCancelEvent struct {
	EventBase
	// ResponseID optionally names the response to cancel; when set it must
	// match the active response.
	ResponseID string `json:"response_id,omitempty"`
}

func (*ResponseCancelEvent) ClientEventType() string { return TypeResponseCancel }

// NewResponseCancel builds a cancel event for the active response.
func NewResponseCancel() *ResponseCancelEvent {
	return &ResponseCancelEvent{EventBase: EventBase{Type: TypeResponseCancel}}
}

// ParseError describes a client payload the codec could not decode. The
// gateway reports it as an invalid_request error event without closing the
// session.
type ParseError struct {
	// EventID is the claimed client event id, when one could be read.
	EventID string
	Err     *Error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(eventID string, err *Error) *ParseError {
	return &ParseError{EventID: eventID, Err: err}
}

// ParseClientEvent decodes one client event from raw JSON. Errors are
// always *ParseError so callers can attribute them to the claimed event id.
func ParseClientEvent(data []byte) (ClientEvent, error) {
	var envelope struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, parseErr("", NewError(ErrInvalidRequest, "event is not a JSON object"))
	}
	if envelope.Type == "" {
		return nil, parseErr(envelope.EventID, NewError(ErrInvalidRequest, "event type is missing").WithParam("type"))
	}

	var ev ClientEvent
	switch envelope.Type {
	case TypeSessionUpdate:
		ev = &SessionUpdateEvent{}
	case TypeInputAudioBufferAppend:
		ev = &InputAudioBufferAppendEvent{}
	case TypeInputAudioBufferCommit:
		ev = &InputAudioBufferCommitEvent{}
	case TypeInputAudioBufferClear:
		ev = &InputAudioBufferClearEvent{}
	case TypeConversationItemCreate:
		ev = &ConversationItemCreateEvent{}
	case TypeConversationItemTruncate:
		ev = &ConversationItemTruncateEvent{}
	case TypeConversationItemDelete:
		ev = &ConversationItemDeleteEvent{}
	case TypeResponseCreate:
		ev = &ResponseCreateEvent{}
	case TypeResponseCancel:
		ev = &ResponseCancelEvent{}
	default:
		return nil, parseErr(envelope.EventID,
			Errorf(ErrInvalidRequest, "unknown event type %q", envelope.Type).WithParam("type"))
	}
	if err := json.Unmarshal(data, ev); err != nil {
		pe := AsError(err)
		if pe.Kind == ErrInternal {
			pe = Errorf(ErrInvalidRequest, "invalid %s payload: %v", envelope.Type, err)
		}
		return nil, parseErr(envelope.EventID, pe)
	}
	return ev, nil
}
