package realtime

// ResponseStatus tracks a response's lifecycle.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
)

// StatusDetails explains a terminal response status.
type StatusDetails struct {
	Type string `json:"type,omitempty"`
	// Reason distinguishes causes within a status, e.g. "client_cancelled"
	// and "turn_detected" for cancellations, "max_output_tokens" for
	// incomplete responses.
	Reason string `json:"reason,omitempty"`
	// Error carries the failure detail on failed responses.
	Error *ErrorPayload `json:"error,omitempty"`
}

// Terminal status reasons.
const (
	ReasonClientCancelled = "client_cancelled"
	ReasonTurnDetected    = "turn_detected"
	ReasonMaxOutputTokens = "max_output_tokens"
	ReasonContentFilter   = "content_filter"
)

// Usage reports token consumption for a response.
type Usage struct {
	TotalTokens  int64 `json:"total_tokens"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the response resource carried by response.* events.
type Response struct {
	ID            string         `json:"id"`
	Object        string         `json:"object"`
	Status        ResponseStatus `json:"status"`
	StatusDetails *StatusDetails `json:"status_details,omitempty"`
	// Output lists the items the response produced, in output order.
	Output []*Item `json:"output"`
	Usage  *Usage  `json:"usage,omitempty"`
}

// NewResponse builds an in-progress response resource.
func NewResponse(id string) *Response {
	return &Response{
		ID:     id,
		Object: ObjectResponse,
		Status: ResponseStatusInProgress,
		Output: []*Item{},
	}
}

// Clone returns a deep copy of the response resource.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	if r.StatusDetails != nil {
		d := *r.StatusDetails
		out.StatusDetails = &d
	}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	out.Output = make([]*Item, len(r.Output))
	for i, it := range r.Output {
		out.Output[i] = it.Clone()
	}
	return &out
}

// WithoutAudio returns a wire-safe copy with audio payloads dropped from
// every output item.
func (r *Response) WithoutAudio() *Response {
	out := r.Clone()
	for i, it := range out.Output {
		out.Output[i] = it.WithoutAudio()
	}
	return out
}

// ResponseOverrides carries the per-response configuration a client may
// attach to response.create. Nil fields inherit from the session; the
// session itself is never mutated.
type ResponseOverrides struct {
	Modalities              []Modality  `json:"modalities,omitempty"`
	Instructions            *string     `json:"instructions,omitempty"`
	Voice                   *string     `json:"voice,omitempty"`
	OutputAudioFormat       *AudioFormat `json:"output_audio_format,omitempty"`
	Tools                   []Tool      `json:"tools,omitempty"`
	ToolChoice              *ToolChoice `json:"tool_choice,omitempty"`
	Temperature             *float64    `json:"temperature,omitempty"`
	MaxResponseOutputTokens *MaxTokens  `json:"max_response_output_tokens,omitempty"`
}

// Apply overlays the overrides on a copy of the session configuration and
// validates the result. The input session is not modified.
func (o *ResponseOverrides) Apply(s *Session) (*Session, error) {
	eff := s.Clone()
	if o == nil {
		return eff, nil
	}
	if o.Modalities != nil {
		eff.Modalities = append([]Modality(nil), o.Modalities...)
	}
	if o.Instructions != nil {
		eff.Instructions = *o.Instructions
	}
	if o.Voice != nil {
		eff.Voice = *o.Voice
	}
	if o.OutputAudioFormat != nil {
		eff.OutputAudioFormat = *o.OutputAudioFormat
	}
	if o.Tools != nil {
		eff.Tools = append([]Tool(nil), o.Tools...)
	}
	if o.ToolChoice != nil {
		eff.ToolChoice = *o.ToolChoice
	}
	if o.Temperature != nil {
		eff.Temperature = *o.Temperature
	}
	if o.MaxResponseOutputTokens != nil {
		eff.MaxResponseOutputTokens = *o.MaxResponseOutputTokens
	}
	if err := eff.Validate(); err != nil {
		return nil, err
	}
	return eff, nil
}
