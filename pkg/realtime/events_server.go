package realtime

import "encoding/json"

// SessionCreatedEvent announces the session with its effective defaults.
type SessionCreatedEvent struct {
	EventBase
	Session *Session `json:"session"`
}

func (*SessionCreatedEvent) ServerEventType() string { return TypeSessionCreated }

// NewSessionCreated builds a session.created event.
func NewSessionCreated(s *Session) *SessionCreatedEvent {
	return &SessionCreatedEvent{EventBase: EventBase{Type: TypeSessionCreated}, Session: s}
}

// SessionUpdatedEvent echoes the full configuration after a merge.
type SessionUpdatedEvent struct {
	EventBase
	Session *Session `json:"session"`
}

func (*SessionUpdatedEvent) ServerEventType() string { return TypeSessionUpdated }

// NewSessionUpdated builds a session.updated event.
func NewSessionUpdated(s *Session) *SessionUpdatedEvent {
	return &SessionUpdatedEvent{EventBase: EventBase{Type: TypeSessionUpdated}, Session: s}
}

// ConversationItemCreatedEvent announces an item added to the log.
type ConversationItemCreatedEvent struct {
	EventBase
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           *Item  `json:"item"`
}

func (*ConversationItemCreatedEvent) ServerEventType() string { return TypeConversationItemCreated }

// NewConversationItemCreated builds a conversation.item.created event.
func NewConversationItemCreated(previousItemID string, item *Item) *ConversationItemCreatedEvent {
	return &ConversationItemCreatedEvent{
		EventBase:      EventBase{Type: TypeConversationItemCreated},
		PreviousItemID: previousItemID,
		Item:           item,
	}
}

// InputAudioTranscriptionCompletedEvent delivers the transcript of a
// committed audio region.
type InputAudioTranscriptionCompletedEvent struct {
	EventBase
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

func (*InputAudioTranscriptionCompletedEvent) ServerEventType() string {
	return TypeInputAudioTranscriptionCompleted
}

// NewInputAudioTranscriptionCompleted builds a transcription completion event.
func NewInputAudioTranscriptionCompleted(itemID string, contentIndex int, transcript string) *InputAudioTranscriptionCompletedEvent {
	return &InputAudioTranscriptionCompletedEvent{
		EventBase:    EventBase{Type: TypeInputAudioTranscriptionCompleted},
		ItemID:       itemID,
		ContentIndex: contentIndex,
		Transcript:   transcript,
	}
}

// InputAudioTranscriptionFailedEvent reports a failed transcription.
type InputAudioTranscriptionFailedEvent struct {
	EventBase
	ItemID       string       `json:"item_id"`
	ContentIndex int          `json:"content_index"`
	Error        ErrorPayload `json:"error"`
}

func (*InputAudioTranscriptionFailedEvent) ServerEventType() string {
	return TypeInputAudioTranscriptionFailed
}

// NewInputAudioTranscriptionFailed builds a transcription failure event.
func NewInputAudioTranscriptionFailed(itemID string, contentIndex int, errPayload ErrorPayload) *InputAudioTranscriptionFailedEvent {
	return &InputAudioTranscriptionFailedEvent{
		EventBase:    EventBase{Type: TypeInputAudioTranscriptionFailed},
		ItemID:       itemID,
		ContentIndex: contentIndex,
		Error:        errPayload,
	}
}

// ConversationItemTruncatedEvent confirms an audio truncation.
type ConversationItemTruncatedEvent struct {
	EventBase
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

func (*ConversationItemTruncatedEvent) ServerEventType() string { return TypeConversationItemTruncated }

// NewConversationItemTruncated builds a conversation.item.truncated event.
func NewConversationItemTruncated(itemID string, contentIndex, audioEndMs int) *ConversationItemTruncatedEvent {
	return &ConversationItemTruncatedEvent{
		EventBase:    EventBase{Type: TypeConversationItemTruncated},
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	}
}

// ConversationItemDeletedEvent confirms an item removal.
type ConversationItemDeletedEvent struct {
	EventBase
	ItemID string `json:"item_id"`
}

func (*ConversationItemDeletedEvent) ServerEventType() string { return TypeConversationItemDeleted }

// NewConversationItemDeleted builds a conversation.item.deleted event.
func NewConversationItemDeleted(itemID string) *ConversationItemDeletedEvent {
	return &ConversationItemDeletedEvent{
		EventBase: EventBase{Type: TypeConversationItemDeleted},
		ItemID:    itemID,
	}
}

// InputAudioBufferCommittedEvent confirms a commit and names the user item
// that now owns the audio.
type InputAudioBufferCommittedEvent struct {
	EventBase
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ItemID         string `json:"item_id"`
}

func (*InputAudioBufferCommittedEvent) ServerEventType() string { return TypeInputAudioBufferCommitted }

// NewInputAudioBufferCommitted builds a committed event.
func NewInputAudioBufferCommitted(previousItemID, itemID string) *InputAudioBufferCommittedEvent {
	return &InputAudioBufferCommittedEvent{
		EventBase:      EventBase{Type: TypeInputAudioBufferCommitted},
		PreviousItemID: previousItemID,
		ItemID:         itemID,
	}
}

// InputAudioBufferClearedEvent confirms a clear.
type InputAudioBufferClearedEvent struct {
	EventBase
}

func (*InputAudioBufferClearedEvent) ServerEventType() string { return TypeInputAudioBufferCleared }

// NewInputAudioBufferCleared builds a cleared event.
func NewInputAudioBufferCleared() *InputAudioBufferClearedEvent {
	return &InputAudioBufferClearedEvent{EventBase: EventBase{Type: TypeInputAudioBufferCleared}}
}

// SpeechStartedEvent reports a detected speech onset.
type SpeechStartedEvent struct {
	EventBase
	// AudioStartMs is the onset position in the input stream, backdated by
	// the configured prefix padding.
	AudioStartMs int `json:"audio_start_ms"`
	// ItemID is the id the user item will carry once the turn commits.
	ItemID string `json:"item_id"`
}

func (*SpeechStartedEvent) ServerEventType() string { return TypeInputAudioBufferSpeechStarted }

// NewSpeechStarted builds a speech_started event.
func NewSpeechStarted(audioStartMs int, itemID string) *SpeechStartedEvent {
	return &SpeechStartedEvent{
		EventBase:    EventBase{Type: TypeInputAudioBufferSpeechStarted},
		AudioStartMs: audioStartMs,
		ItemID:       itemID,
	}
}

// SpeechStoppedEvent reports a detected speech end.
type SpeechStoppedEvent struct {
	EventBase
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

func (*SpeechStoppedEvent) ServerEventType() string { return TypeInputAudioBufferSpeechStopped }

// NewSpeechStopped builds a speech_stopped event.
func NewSpeechStopped(audioEndMs int, itemID string) *SpeechStoppedEvent {
	return &SpeechStoppedEvent{
		EventBase:  EventBase{Type: TypeInputAudioBufferSpeechStopped},
		AudioEndMs: audioEndMs,
		ItemID:     itemID,
	}
}

// ResponseCreatedEvent opens a response's event stream.
type ResponseCreatedEvent struct {
	EventBase
	Response *Response `json:"response"`
}

func (*ResponseCreatedEvent) ServerEventType() string { return TypeResponseCreated }

// NewResponseCreated builds a response.created event.
func NewResponseCreated(r *Response) *ResponseCreatedEvent {
	return &ResponseCreatedEvent{EventBase: EventBase{Type: TypeResponseCreated}, Response: r}
}

// ResponseOutputItemAddedEvent announces a new output item.
type ResponseOutputItemAddedEvent struct {
	EventBase
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        *Item  `json:"item"`
}

func (*ResponseOutputItemAddedEvent) ServerEventType() string { return TypeResponseOutputItemAdded }

// NewResponseOutputItemAdded builds an output_item.added event.
func NewResponseOutputItemAdded(responseID string, outputIndex int, item *Item) *ResponseOutputItemAddedEvent {
	return &ResponseOutputItemAddedEvent{
		EventBase:   EventBase{Type: TypeResponseOutputItemAdded},
		ResponseID:  responseID,
		OutputIndex: outputIndex,
		Item:        item,
	}
}

// PartRef locates a content part within a response's output.
type PartRef struct {
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

// ResponseContentPartAddedEvent announces a new content part on an output
// message item.
type ResponseContentPartAddedEvent struct {
	EventBase
	PartRef
	Part ContentPart `json:"part"`
}

func (*ResponseContentPartAddedEvent) ServerEventType() string { return TypeResponseContentPartAdded }

// NewResponseContentPartAdded builds a content_part.added event.
func NewResponseContentPartAdded(ref PartRef, part ContentPart) *ResponseContentPartAddedEvent {
	return &ResponseContentPartAddedEvent{
		EventBase: EventBase{Type: TypeResponseContentPartAdded},
		PartRef:   ref,
		Part:      part,
	}
}

// ResponseTextDeltaEvent streams text content on text-modality responses.
type ResponseTextDeltaEvent struct {
	EventBase
	PartRef
	Delta string `json:"delta"`
}

func (*ResponseTextDeltaEvent) ServerEventType() string { return TypeResponseTextDelta }

// NewResponseTextDelta builds a text.delta event.
func NewResponseTextDelta(ref PartRef, delta string) *ResponseTextDeltaEvent {
	return &ResponseTextDeltaEvent{EventBase: EventBase{Type: TypeResponseTextDelta}, PartRef: ref, Delta: delta}
}

// ResponseTextDoneEvent closes a text part with its final text.
type ResponseTextDoneEvent struct {
	EventBase
	PartRef
	Text string `json:"text"`
}

func (*ResponseTextDoneEvent) ServerEventType() string { return TypeResponseTextDone }

// NewResponseTextDone builds a text.done event.
func NewResponseTextDone(ref PartRef, text string) *ResponseTextDoneEvent {
	return &ResponseTextDoneEvent{EventBase: EventBase{Type: TypeResponseTextDone}, PartRef: ref, Text: text}
}

// ResponseAudioTranscriptDeltaEvent streams the transcript of synthesized
// audio.
type ResponseAudioTranscriptDeltaEvent struct {
	EventBase
	PartRef
	Delta string `json:"delta"`
}

func (*ResponseAudioTranscriptDeltaEvent) ServerEventType() string {
	return TypeResponseAudioTranscriptDelta
}

// NewResponseAudioTranscriptDelta builds an audio_transcript.delta event.
func NewResponseAudioTranscriptDelta(ref PartRef, delta string) *ResponseAudioTranscriptDeltaEvent {
	return &ResponseAudioTranscriptDeltaEvent{
		EventBase: EventBase{Type: TypeResponseAudioTranscriptDelta},
		PartRef:   ref,
		Delta:     delta,
	}
}

// ResponseAudioTranscriptDoneEvent closes an audio part's transcript.
type ResponseAudioTranscriptDoneEvent struct {
	EventBase
	PartRef
	Transcript string `json:"transcript"`
}

func (*ResponseAudioTranscriptDoneEvent) ServerEventType() string {
	return TypeResponseAudioTranscriptDone
}

// NewResponseAudioTranscriptDone builds an audio_transcript.done event.
func NewResponseAudioTranscriptDone(ref PartRef, transcript string) *ResponseAudioTranscriptDoneEvent {
	return &ResponseAudioTranscriptDoneEvent{
		EventBase:  EventBase{Type: TypeResponseAudioTranscriptDone},
		PartRef:    ref,
		Transcript: transcript,
	}
}

// ResponseAudioDeltaEvent streams base64 PCM16 synthesis output.
type ResponseAudioDeltaEvent struct {
	EventBase
	PartRef
	Delta string `json:"delta"`
}

func (*ResponseAudioDeltaEvent) ServerEventType() string { return TypeResponseAudioDelta }

// NewResponseAudioDelta builds an audio.delta event.
func NewResponseAudioDelta(ref PartRef, delta string) *ResponseAudioDeltaEvent {
	return &ResponseAudioDeltaEvent{EventBase: EventBase{Type: TypeResponseAudioDelta}, PartRef: ref, Delta: delta}
}

// ResponseAudioDoneEvent closes an audio part's sample stream.
type ResponseAudioDoneEvent struct {
	EventBase
	PartRef
}

func (*ResponseAudioDoneEvent) ServerEventType() string { return TypeResponseAudioDone }

// NewResponseAudioDone builds an audio.done event.
func NewResponseAudioDone(ref PartRef) *ResponseAudioDoneEvent {
	return &ResponseAudioDoneEvent{EventBase: EventBase{Type: TypeResponseAudioDone}, PartRef: ref}
}

// CallRef locates a function call within a response's output.
type CallRef struct {
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
}

// ResponseFunctionCallArgumentsDeltaEvent streams tool call arguments.
type ResponseFunctionCallArgumentsDeltaEvent struct {
	EventBase
	CallRef
	Delta string `json:"delta"`
}

func (*ResponseFunctionCallArgumentsDeltaEvent) ServerEventType() string {
	return TypeResponseFunctionCallArgumentsDelta
}

// NewResponseFunctionCallArgumentsDelta builds an arguments delta event.
func NewResponseFunctionCallArgumentsDelta(ref CallRef, delta string) *ResponseFunctionCallArgumentsDeltaEvent {
	return &ResponseFunctionCallArgumentsDeltaEvent{
		EventBase: EventBase{Type: TypeResponseFunctionCallArgumentsDelta},
		CallRef:   ref,
		Delta:     delta,
	}
}

// ResponseFunctionCallArgumentsDoneEvent closes a tool call with its full
// argument payload.
type ResponseFunctionCallArgumentsDoneEvent struct {
	EventBase
	CallRef
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (*ResponseFunctionCallArgumentsDoneEvent) ServerEventType() string {
	return TypeResponseFunctionCallArgumentsDone
}

// NewResponseFunctionCallArgumentsDone builds an arguments done event.
func NewResponseFunctionCallArgumentsDone(ref CallRef, name, arguments string) *ResponseFunctionCallArgumentsDoneEvent {
	return &ResponseFunctionCallArgumentsDoneEvent{
		EventBase: EventBase{Type: TypeResponseFunctionCallArgumentsDone},
		CallRef:   ref,
		Name:      name,
		Arguments: arguments,
	}
}

// ResponseContentPartDoneEvent closes a content part.
type ResponseContentPartDoneEvent struct {
	EventBase
	PartRef
	Part ContentPart `json:"part"`
}

func (*ResponseContentPartDoneEvent) ServerEventType() string { return TypeResponseContentPartDone }

// NewResponseContentPartDone builds a content_part.done event.
func NewResponseContentPartDone(ref PartRef, part ContentPart) *ResponseContentPartDoneEvent {
	return &ResponseContentPartDoneEvent{
		EventBase: EventBase{Type: TypeResponseContentPartDone},
		PartRef:   ref,
		Part:      part,
	}
}

// ResponseOutputItemDoneEvent closes an output item.
type ResponseOutputItemDoneEvent struct {
	EventBase
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        *Item  `json:"item"`
}

func (*ResponseOutputItemDoneEvent) ServerEventType() string { return TypeResponseOutputItemDone }

// NewResponseOutputItemDone builds an output_item.done event.
func NewResponseOutputItemDone(responseID string, outputIndex int, item *Item) *ResponseOutputItemDoneEvent {
	return &ResponseOutputItemDoneEvent{
		EventBase:   EventBase{Type: TypeResponseOutputItemDone},
		ResponseID:  responseID,
		OutputIndex: outputIndex,
		Item:        item,
	}
}

// ResponseDoneEvent closes a completed response with usage.
type ResponseDoneEvent struct {
	EventBase
	Response *Response `json:"response"`
}

func (*ResponseDoneEvent) ServerEventType() string { return TypeResponseDone }

// NewResponseDone builds a response.done event.
func NewResponseDone(r *Response) *ResponseDoneEvent {
	return &ResponseDoneEvent{EventBase: EventBase{Type: TypeResponseDone}, Response: r}
}

// ResponseCancelledEvent closes a cancelled response.
type ResponseCancelledEvent struct {
	EventBase
	Response *Response `json:"response"`
}

func (*ResponseCancelledEvent) ServerEventType() string { return TypeResponseCancelled }

// NewResponseCancelled builds a response.cancelled event.
func NewResponseCancelled(r *Response) *ResponseCancelledEvent {
	return &ResponseCancelledEvent{EventBase: EventBase{Type: TypeResponseCancelled}, Response: r}
}

// ResponseFailedEvent closes a failed response. The failure detail rides in
// the response's status_details.
type ResponseFailedEvent struct {
	EventBase
	Response *Response `json:"response"`
}

func (*ResponseFailedEvent) ServerEventType() string { return TypeResponseFailed }

// NewResponseFailed builds a response.failed event.
func NewResponseFailed(r *Response) *ResponseFailedEvent {
	return &ResponseFailedEvent{EventBase: EventBase{Type: TypeResponseFailed}, Response: r}
}

// ErrorEvent reports a non-fatal error; the session stays open.
type ErrorEvent struct {
	EventBase
	Error ErrorPayload `json:"error"`
}

func (*ErrorEvent) ServerEventType() string { return TypeError }

// NewErrorEvent builds an error event.
func NewErrorEvent(payload ErrorPayload) *ErrorEvent {
	return &ErrorEvent{EventBase: EventBase{Type: TypeError}, Error: payload}
}

// MarshalServerEvent encodes a server event for the wire.
func MarshalServerEvent(ev ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// ParseServerEvent decodes one server event from raw JSON. It is the
// inverse of MarshalServerEvent and exists for clients.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, NewError(ErrInvalidRequest, "event is not a JSON object")
	}

	var ev ServerEvent
	switch envelope.Type {
	case TypeSessionCreated:
		ev = &SessionCreatedEvent{}
	case TypeSessionUpdated:
		ev = &SessionUpdatedEvent{}
	case TypeConversationItemCreated:
		ev = &ConversationItemCreatedEvent{}
	case TypeInputAudioTranscriptionCompleted:
		ev = &InputAudioTranscriptionCompletedEvent{}
	case TypeInputAudioTranscriptionFailed:
		ev = &InputAudioTranscriptionFailedEvent{}
	case TypeConversationItemTruncated:
		ev = &ConversationItemTruncatedEvent{}
	case TypeConversationItemDeleted:
		ev = &ConversationItemDeletedEvent{}
	case TypeInputAudioBufferCommitted:
		ev = &InputAudioBufferCommittedEvent{}
	case TypeInputAudioBufferCleared:
		ev = &InputAudioBufferClearedEvent{}
	case TypeInputAudioBufferSpeechStarted:
		ev = &SpeechStartedEvent{}
	case TypeInputAudioBufferSpeechStopped:
		ev = &SpeechStoppedEvent{}
	case TypeResponseCreated:
		ev = &ResponseCreatedEvent{}
	case TypeResponseOutputItemAdded:
		ev = &ResponseOutputItemAddedEvent{}
	case TypeResponseContentPartAdded:
		ev = &ResponseContentPartAddedEvent{}
	case TypeResponseTextDelta:
		ev = &ResponseTextDeltaEvent{}
	case TypeResponseTextDone:
		ev = &ResponseTextDoneEvent{}
	case TypeResponseAudioTranscriptDelta:
		ev = &ResponseAudioTranscriptDeltaEvent{}
	case TypeResponseAudioTranscriptDone:
		ev = &ResponseAudioTranscriptDoneEvent{}
	case TypeResponseAudioDelta:
		ev = &ResponseAudioDeltaEvent{}
	case TypeResponseAudioDone:
		ev = &ResponseAudioDoneEvent{}
	case TypeResponseFunctionCallArgumentsDelta:
		ev = &ResponseFunctionCallArgumentsDeltaEvent{}
	case TypeResponseFunctionCallArgumentsDone:
		ev = &ResponseFunctionCallArgumentsDoneEvent{}
	case TypeResponseContentPartDone:
		ev = &ResponseContentPartDoneEvent{}
	case TypeResponseOutputItemDone:
		ev = &ResponseOutputItemDoneEvent{}
	case TypeResponseDone:
		ev = &ResponseDoneEvent{}
	case TypeResponseCancelled:
		ev = &ResponseCancelledEvent{}
	case TypeResponseFailed:
		ev = &ResponseFailedEvent{}
	case TypeError:
		ev = &ErrorEvent{}
	default:
		return nil, Errorf(ErrInvalidRequest, "unknown event type %q", envelope.Type)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		pe := AsError(err)
		if pe.Kind == ErrInternal {
			pe = Errorf(ErrInvalidRequest, "invalid %s payload: %v", envelope.Type, err)
		}
		return nil, pe
	}
	return ev, nil
}
