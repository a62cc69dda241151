package realtime

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Modality names an output channel a response may produce.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// AudioFormat names a session audio encoding. Only 24 kHz mono PCM16 is
// supported.
type AudioFormat string

// AudioFormatPCM16 is 16-bit signed little-endian PCM, mono, 24 000 Hz.
const AudioFormatPCM16 AudioFormat = "pcm16"

// Intent selects the session mode at connect time. It cannot be changed by
// session.update.
type Intent string

const (
	// IntentConversation is the default bidirectional conversation mode.
	IntentConversation Intent = "conversation"
	// IntentTranscription disables the response pipeline; committed audio
	// is transcribed and nothing else.
	IntentTranscription Intent = "transcription"
)

// TurnDetectionServerVAD is the only supported turn_detection type.
const TurnDetectionServerVAD = "server_vad"

// Default server_vad parameters.
const (
	DefaultVADThreshold         = 0.5
	DefaultVADPrefixPaddingMs   = 300
	DefaultVADSilenceDurationMs = 500
)

// TurnDetection configures automatic turn segmentation of input audio.
// A nil TurnDetection on the session means manual mode: the client commits
// the buffer itself.
type TurnDetection struct {
	Type string `json:"type"`
	// Threshold is the speech probability above which a frame counts as
	// speech, in [0, 1].
	Threshold float64 `json:"threshold"`
	// PrefixPaddingMs is how long audio must stay above the threshold
	// before speech is confirmed; the confirmed region is backdated by the
	// same amount so onsets are not clipped.
	PrefixPaddingMs int `json:"prefix_padding_ms"`
	// SilenceDurationMs is how long audio must stay below the threshold
	// before the turn ends.
	SilenceDurationMs int `json:"silence_duration_ms"`
	// CreateResponse controls whether the end of a turn triggers a
	// response automatically.
	CreateResponse bool `json:"create_response"`
	// InterruptResponse controls whether detected speech cancels an
	// active response.
	InterruptResponse bool `json:"interrupt_response"`
}

// DefaultTurnDetection returns server_vad with default parameters.
func DefaultTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:              TurnDetectionServerVAD,
		Threshold:         DefaultVADThreshold,
		PrefixPaddingMs:   DefaultVADPrefixPaddingMs,
		SilenceDurationMs: DefaultVADSilenceDurationMs,
		CreateResponse:    true,
		InterruptResponse: true,
	}
}

// UnmarshalJSON fills defaults for absent fields and accepts the short
// aliases prefix_ms and silence_ms alongside the canonical names.
func (t *TurnDetection) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type              *string  `json:"type"`
		Threshold         *float64 `json:"threshold"`
		PrefixPaddingMs   *int     `json:"prefix_padding_ms"`
		PrefixMs          *int     `json:"prefix_ms"`
		SilenceDurationMs *int     `json:"silence_duration_ms"`
		SilenceMs         *int     `json:"silence_ms"`
		CreateResponse    *bool    `json:"create_response"`
		InterruptResponse *bool    `json:"interrupt_response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = *DefaultTurnDetection()
	if raw.Type != nil {
		t.Type = *raw.Type
	}
	if raw.Threshold != nil {
		t.Threshold = *raw.Threshold
	}
	if raw.PrefixMs != nil {
		t.PrefixPaddingMs = *raw.PrefixMs
	}
	if raw.PrefixPaddingMs != nil {
		t.PrefixPaddingMs = *raw.PrefixPaddingMs
	}
	if raw.SilenceMs != nil {
		t.SilenceDurationMs = *raw.SilenceMs
	}
	if raw.SilenceDurationMs != nil {
		t.SilenceDurationMs = *raw.SilenceDurationMs
	}
	if raw.CreateResponse != nil {
		t.CreateResponse = *raw.CreateResponse
	}
	if raw.InterruptResponse != nil {
		t.InterruptResponse = *raw.InterruptResponse
	}
	return nil
}

func (t *TurnDetection) validate() error {
	if t.Type != TurnDetectionServerVAD {
		return Errorf(ErrInvalidRequest, "unsupported turn_detection type %q", t.Type)
	}
	if t.Threshold < 0 || t.Threshold > 1 {
		return Errorf(ErrInvalidRequest, "turn_detection.threshold %v outside [0, 1]", t.Threshold)
	}
	if t.PrefixPaddingMs < 0 || t.SilenceDurationMs < 0 {
		return NewError(ErrInvalidRequest, "turn_detection durations must not be negative")
	}
	return nil
}

// InputAudioTranscription configures transcription of committed input
// audio. A nil value disables transcription.
type InputAudioTranscription struct {
	// Model names the transcription model. Empty means the server default.
	Model string `json:"model"`
	// Language is an optional BCP-47 hint passed to the backend.
	Language string `json:"language,omitempty"`
	// Prompt is optional context text passed to the backend.
	Prompt string `json:"prompt,omitempty"`
}

// Tool declares a function the model may call during a response.
type Tool struct {
	Type string `json:"type"`
	// Name is the function name. Required.
	Name string `json:"name"`
	// Description tells the model when to call the function.
	Description string `json:"description,omitempty"`
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (t Tool) validate() error {
	if t.Type != "function" {
		return Errorf(ErrInvalidRequest, "unsupported tool type %q", t.Type)
	}
	if t.Name == "" {
		return NewError(ErrInvalidRequest, "tool name must not be empty")
	}
	return nil
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
	ToolChoiceFunction = "function"
)

// ToolChoice selects how the model may use tools. On the wire it is either
// a bare mode string or {"type": "function", "name": "..."}.
type ToolChoice struct {
	Mode string
	// Name is the forced function when Mode is "function".
	Name string
}

// MarshalJSON emits the bare string form for plain modes and the object
// form for a forced function.
func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.Mode == ToolChoiceFunction {
		return json.Marshal(struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}{Type: ToolChoiceFunction, Name: c.Name})
	}
	mode := c.Mode
	if mode == "" {
		mode = ToolChoiceAuto
	}
	return json.Marshal(mode)
}

// UnmarshalJSON accepts a mode string, the flat function object, and the
// nested {"function": {"name": ...}} form some clients send.
func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
			c.Mode, c.Name = s, ""
			return nil
		default:
			return Errorf(ErrInvalidRequest, "unsupported tool_choice %q", s)
		}
	}
	var obj struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Function *struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return NewError(ErrInvalidRequest, "tool_choice must be a string or a function object")
	}
	if obj.Type != ToolChoiceFunction {
		return Errorf(ErrInvalidRequest, "unsupported tool_choice type %q", obj.Type)
	}
	name := obj.Name
	if name == "" && obj.Function != nil {
		name = obj.Function.Name
	}
	if name == "" {
		return NewError(ErrInvalidRequest, "tool_choice function name must not be empty")
	}
	c.Mode, c.Name = ToolChoiceFunction, name
	return nil
}

// MaxTokens caps response output tokens. Values <= 0 mean unlimited and
// serialize as the string "inf".
type MaxTokens int64

// MaxTokensInf is the unlimited sentinel.
const MaxTokensInf MaxTokens = -1

// Limit returns the cap in tokens, or 0 when unlimited.
func (m MaxTokens) Limit() int64 {
	if m <= 0 {
		return 0
	}
	return int64(m)
}

func (m MaxTokens) MarshalJSON() ([]byte, error) {
	if m <= 0 {
		return json.Marshal("inf")
	}
	return json.Marshal(int64(m))
}

func (m *MaxTokens) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "inf" {
			return Errorf(ErrInvalidRequest, "max_response_output_tokens must be a positive integer or %q", "inf")
		}
		*m = MaxTokensInf
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return NewError(ErrInvalidRequest, "max_response_output_tokens must be a positive integer or \"inf\"")
	}
	if n <= 0 {
		return NewError(ErrInvalidRequest, "max_response_output_tokens must be positive")
	}
	*m = MaxTokens(n)
	return nil
}

// Session is the session resource: identity plus the mutable configuration
// echoed in session.created and session.updated.
type Session struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Model  string `json:"model"`
	Intent Intent `json:"intent,omitempty"`

	Modalities              []Modality               `json:"modalities"`
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           *TurnDetection           `json:"turn_detection"`
	Tools                   []Tool                   `json:"tools"`
	ToolChoice              ToolChoice               `json:"tool_choice"`
	Temperature             float64                  `json:"temperature"`
	MaxResponseOutputTokens MaxTokens                `json:"max_response_output_tokens"`
}

// SessionDefaults seeds a new session's configuration.
type SessionDefaults struct {
	// Voice is the default synthesis voice id.
	Voice string
	// TranscriptionModel is the default input transcription model. Empty
	// disables input transcription unless the client configures it.
	TranscriptionModel string
	// Instructions is the default system prompt.
	Instructions string
	// Temperature is the default sampling temperature.
	Temperature float64
}

// NewSession builds a session resource with protocol defaults applied.
func NewSession(id, model string, intent Intent, d SessionDefaults) *Session {
	temp := d.Temperature
	if temp == 0 {
		temp = 0.8
	}
	s := &Session{
		ID:                      id,
		Object:                  ObjectSession,
		Model:                   model,
		Intent:                  intent,
		Modalities:              []Modality{ModalityAudio, ModalityText},
		Instructions:            d.Instructions,
		Voice:                   d.Voice,
		InputAudioFormat:        AudioFormatPCM16,
		OutputAudioFormat:       AudioFormatPCM16,
		TurnDetection:           DefaultTurnDetection(),
		Tools:                   []Tool{},
		ToolChoice:              ToolChoice{Mode: ToolChoiceAuto},
		Temperature:             temp,
		MaxResponseOutputTokens: MaxTokensInf,
	}
	if d.TranscriptionModel != "" {
		s.InputAudioTranscription = &InputAudioTranscription{Model: d.TranscriptionModel}
	}
	return s
}

// Clone returns a deep copy of the session resource.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Modalities = slices.Clone(s.Modalities)
	if s.InputAudioTranscription != nil {
		t := *s.InputAudioTranscription
		out.InputAudioTranscription = &t
	}
	if s.TurnDetection != nil {
		td := *s.TurnDetection
		out.TurnDetection = &td
	}
	out.Tools = make([]Tool, len(s.Tools))
	for i, tool := range s.Tools {
		out.Tools[i] = tool
		if tool.Parameters != nil {
			out.Tools[i].Parameters = cloneJSONMap(tool.Parameters)
		}
	}
	return &out
}

// HasModality reports whether m is enabled on the session.
func (s *Session) HasModality(m Modality) bool {
	return slices.Contains(s.Modalities, m)
}

// Validate checks the configuration invariants shared by session.update
// and per-response overrides.
func (s *Session) Validate() error {
	if len(s.Modalities) == 0 {
		return NewError(ErrInvalidRequest, "modalities must not be empty")
	}
	for _, m := range s.Modalities {
		if m != ModalityText && m != ModalityAudio {
			return Errorf(ErrInvalidRequest, "unsupported modality %q", m)
		}
	}
	if s.InputAudioFormat != AudioFormatPCM16 {
		return Errorf(ErrInvalidRequest, "unsupported input_audio_format %q", s.InputAudioFormat)
	}
	if s.OutputAudioFormat != AudioFormatPCM16 {
		return Errorf(ErrInvalidRequest, "unsupported output_audio_format %q", s.OutputAudioFormat)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return Errorf(ErrInvalidRequest, "temperature %v outside [0, 2]", s.Temperature)
	}
	if s.TurnDetection != nil {
		if err := s.TurnDetection.validate(); err != nil {
			return err
		}
	}
	for _, tool := range s.Tools {
		if err := tool.validate(); err != nil {
			return err
		}
	}
	if c := s.ToolChoice; c.Mode == ToolChoiceFunction {
		if !slices.ContainsFunc(s.Tools, func(t Tool) bool { return t.Name == c.Name }) {
			return Errorf(ErrInvalidRequest, "tool_choice names unknown function %q", c.Name)
		}
	}
	return nil
}

func cloneJSONMap(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}

func (c ToolChoice) String() string {
	if c.Mode == ToolChoiceFunction {
		return fmt.Sprintf("function:%s", c.Name)
	}
	if c.Mode == "" {
		return ToolChoiceAuto
	}
	return c.Mode
}
