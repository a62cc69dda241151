package realtime

import "slices"

// ItemType discriminates conversation item variants.
type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

// ItemStatus tracks an item's lifecycle.
type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusIncomplete ItemStatus = "incomplete"
)

// Role names the author of a message item.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates message content parts.
type PartType string

const (
	PartTypeInputText  PartType = "input_text"
	PartTypeInputAudio PartType = "input_audio"
	PartTypeText       PartType = "text"
	PartTypeAudio      PartType = "audio"
)

// ContentPart is one element of a message item's content list.
type ContentPart struct {
	Type PartType `json:"type"`
	// Text carries the text of input_text and text parts.
	Text string `json:"text,omitempty"`
	// Audio carries base64 PCM16 on inbound input_audio parts. The server
	// never echoes audio back; outbound items clear it.
	Audio string `json:"audio,omitempty"`
	// Transcript carries the transcription of an audio part once known.
	Transcript string `json:"transcript,omitempty"`

	// PCM holds the decoded samples server-side. Never serialized.
	PCM []byte `json:"-"`
}

// Item is a conversation item: a message, a function call requested by the
// model, or a function call output supplied by the client.
type Item struct {
	ID     string     `json:"id,omitempty"`
	Object string     `json:"object,omitempty"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status,omitempty"`

	// Role and Content apply to message items.
	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// CallID links function_call and function_call_output items.
	CallID string `json:"call_id,omitempty"`
	// Name is the called function on function_call items.
	Name string `json:"name,omitempty"`
	// Arguments is the raw JSON argument payload on function_call items.
	Arguments string `json:"arguments,omitempty"`
	// Output is the result text on function_call_output items.
	Output string `json:"output,omitempty"`
}

// Clone returns a deep copy, including server-side PCM.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	out.Content = make([]ContentPart, len(it.Content))
	for i, p := range it.Content {
		out.Content[i] = p
		out.Content[i].PCM = slices.Clone(p.PCM)
	}
	return &out
}

// WithoutAudio returns a copy suitable for the wire: audio payloads are
// dropped so conversation events stay small.
func (it *Item) WithoutAudio() *Item {
	out := it.Clone()
	for i := range out.Content {
		out.Content[i].Audio = ""
		out.Content[i].PCM = nil
	}
	return out
}

// AudioPart returns the content part at index if it carries audio.
func (it *Item) AudioPart(index int) (*ContentPart, bool) {
	if index < 0 || index >= len(it.Content) {
		return nil, false
	}
	p := &it.Content[index]
	if p.Type != PartTypeInputAudio && p.Type != PartTypeAudio {
		return nil, false
	}
	return p, true
}

// ValidateClientItem checks an item supplied via conversation.item.create.
func ValidateClientItem(it *Item) error {
	if it == nil {
		return NewError(ErrInvalidItem, "item must not be null")
	}
	switch it.Type {
	case ItemTypeMessage:
		return validateMessageItem(it)
	case ItemTypeFunctionCall:
		if it.CallID == "" || it.Name == "" {
			return NewError(ErrInvalidItem, "function_call items require call_id and name")
		}
		return nil
	case ItemTypeFunctionCallOutput:
		if it.CallID == "" {
			return NewError(ErrInvalidItem, "function_call_output items require call_id")
		}
		return nil
	case "":
		return NewError(ErrInvalidItem, "item type must not be empty")
	default:
		return Errorf(ErrInvalidItem, "unsupported item type %q", it.Type)
	}
}

func validateMessageItem(it *Item) error {
	switch it.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	case "":
		return NewError(ErrInvalidItem, "message items require a role")
	default:
		return Errorf(ErrInvalidItem, "unsupported role %q", it.Role)
	}
	if len(it.Content) != 1 {
		return NewError(ErrInvalidItem, "message items carry exactly one content part")
	}
	switch p := it.Content[0]; p.Type {
	case PartTypeInputText, PartTypeInputAudio:
		if it.Role == RoleAssistant {
			return Errorf(ErrInvalidItem, "%s parts are not valid on assistant messages", p.Type)
		}
	case PartTypeText, PartTypeAudio:
		if it.Role != RoleAssistant {
			return Errorf(ErrInvalidItem, "%s parts are only valid on assistant messages", p.Type)
		}
	case "":
		return NewError(ErrInvalidItem, "content part type must not be empty")
	default:
		return Errorf(ErrInvalidItem, "unsupported content part type %q", p.Type)
	}
	return nil
}
