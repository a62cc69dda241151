// Package realtime defines the JSON event protocol spoken over a realtime
// speech session: client and server event types, the session, conversation
// item and response resources they carry, and the error taxonomy. The codec
// is symmetric so the same types serve the server and test clients.
package realtime

// Object type discriminators carried in resource payloads.
const (
	ObjectSession  = "realtime.session"
	ObjectItem     = "realtime.item"
	ObjectResponse = "realtime.response"
)

// Client event types.
const (
	TypeSessionUpdate            = "session.update"
	TypeInputAudioBufferAppend   = "input_audio_buffer.append"
	TypeInputAudioBufferCommit   = "input_audio_buffer.commit"
	TypeInputAudioBufferClear    = "input_audio_buffer.clear"
	TypeConversationItemCreate   = "conversation.item.create"
	TypeConversationItemTruncate = "conversation.item.truncate"
	TypeConversationItemDelete   = "conversation.item.delete"
	TypeResponseCreate           = "response.create"
	TypeResponseCancel           = "response.cancel"
)

// Server event types.
const (
	TypeSessionCreated                     = "session.created"
	TypeSessionUpdated                     = "session.updated"
	TypeConversationItemCreated            = "conversation.item.created"
	TypeInputAudioTranscriptionCompleted   = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioTranscriptionFailed      = "conversation.item.input_audio_transcription.failed"
	TypeConversationItemTruncated          = "conversation.item.truncated"
	TypeConversationItemDeleted            = "conversation.item.deleted"
	TypeInputAudioBufferCommitted          = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared            = "input_audio_buffer.cleared"
	TypeInputAudioBufferSpeechStarted      = "input_audio_buffer.speech_started"
	TypeInputAudioBufferSpeechStopped      = "input_audio_buffer.speech_stopped"
	TypeResponseCreated                    = "response.created"
	TypeResponseOutputItemAdded            = "response.output_item.added"
	TypeResponseContentPartAdded           = "response.content_part.added"
	TypeResponseTextDelta                  = "response.text.delta"
	TypeResponseTextDone                   = "response.text.done"
	TypeResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone        = "response.audio_transcript.done"
	TypeResponseAudioDelta                 = "response.audio.delta"
	TypeResponseAudioDone                  = "response.audio.done"
	TypeResponseFunctionCallArgumentsDelta = "response.function_call_arguments.delta"
	TypeResponseFunctionCallArgumentsDone  = "response.function_call_arguments.done"
	TypeResponseContentPartDone            = "response.content_part.done"
	TypeResponseOutputItemDone             = "response.output_item.done"
	TypeResponseDone                       = "response.done"
	TypeResponseCancelled                  = "response.cancelled"
	TypeResponseFailed                     = "response.failed"
	TypeError                              = "error"
)

// WebSocket close codes used by the gateway.
const (
	CloseNormal        = 1000
	CloseProtocolError = 4400
	CloseUnauthorized  = 4401
	CloseIdleTimeout   = 4408
	CloseInternalError = 4500
)

// EventBase carries the fields shared by every wire event. It is embedded
// in each concrete event type.
type EventBase struct {
	// EventID identifies the event. Optional on client events; the server
	// stamps every outbound event with a fresh id.
	EventID string `json:"event_id,omitempty"`
	// Type is the event type discriminator.
	Type string `json:"type"`
}

func (b *EventBase) setEventID(id string) { b.EventID = id }

// ClientEvent is implemented by every event a client may send.
type ClientEvent interface {
	ClientEventType() string
}

// ServerEvent is implemented by every event the server emits.
type ServerEvent interface {
	ServerEventType() string
	setEventID(string)
}

// StampEventID sets the outbound event id on a server event.
func StampEventID(ev ServerEvent, id string) { ev.setEventID(id) }
