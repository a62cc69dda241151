package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
)

var jsonNull = []byte("null")

// ApplyUpdate merges a session.update patch into a copy of the session and
// returns the merged result. The root object and nested objects deep-merge
// key by key; lists replace wholesale; null clears nullable sub-objects;
// unknown keys are ignored. The input session is never modified, so a
// rejected update leaves no trace.
func ApplyUpdate(s *Session, patch json.RawMessage) (*Session, error) {
	if len(patch) == 0 || bytes.Equal(bytes.TrimSpace(patch), jsonNull) {
		return nil, NewError(ErrInvalidRequest, "session.update requires a session object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, NewError(ErrInvalidRequest, "session must be a JSON object").WithParam("session")
	}

	out := s.Clone()
	for key, raw := range fields {
		if err := applyField(out, key, raw); err != nil {
			return nil, err
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func applyField(s *Session, key string, raw json.RawMessage) error {
	switch key {
	case "id", "object":
		// Identity fields are echoed by some clients; ignore them.
		return nil
	case "model":
		var v string
		if err := decodeField(&v, raw, key); err != nil {
			return err
		}
		if v != s.Model {
			return NewError(ErrInvalidRequest, "model cannot be changed after session creation").WithParam("session.model")
		}
		return nil
	case "intent":
		var v Intent
		if err := decodeField(&v, raw, key); err != nil {
			return err
		}
		if v != s.Intent {
			return NewError(ErrInvalidRequest, "intent cannot be changed after session creation").WithParam("session.intent")
		}
		return nil
	case "modalities":
		s.Modalities = nil
		return decodeField(&s.Modalities, raw, key)
	case "instructions":
		return decodeField(&s.Instructions, raw, key)
	case "voice":
		return decodeField(&s.Voice, raw, key)
	case "input_audio_format":
		return decodeField(&s.InputAudioFormat, raw, key)
	case "output_audio_format":
		return decodeField(&s.OutputAudioFormat, raw, key)
	case "input_audio_transcription":
		if isNull(raw) {
			s.InputAudioTranscription = nil
			return nil
		}
		return mergeTranscription(s, raw)
	case "turn_detection":
		if isNull(raw) {
			s.TurnDetection = nil
			return nil
		}
		return mergeTurnDetection(s, raw)
	case "tools":
		s.Tools = nil
		if err := decodeField(&s.Tools, raw, key); err != nil {
			return err
		}
		if s.Tools == nil {
			s.Tools = []Tool{}
		}
		return nil
	case "tool_choice":
		return decodeField(&s.ToolChoice, raw, key)
	case "temperature":
		return decodeField(&s.Temperature, raw, key)
	case "max_response_output_tokens":
		return decodeField(&s.MaxResponseOutputTokens, raw, key)
	default:
		// Unknown keys are ignored for forward compatibility.
		return nil
	}
}

func mergeTranscription(s *Session, raw json.RawMessage) error {
	var patch struct {
		Model    *string `json:"model"`
		Language *string `json:"language"`
		Prompt   *string `json:"prompt"`
	}
	if err := decodeField(&patch, raw, "input_audio_transcription"); err != nil {
		return err
	}
	cur := s.InputAudioTranscription
	if cur == nil {
		cur = &InputAudioTranscription{}
	}
	if patch.Model != nil {
		cur.Model = *patch.Model
	}
	if patch.Language != nil {
		cur.Language = *patch.Language
	}
	if patch.Prompt != nil {
		cur.Prompt = *patch.Prompt
	}
	s.InputAudioTranscription = cur
	return nil
}

func mergeTurnDetection(s *Session, raw json.RawMessage) error {
	if s.TurnDetection == nil {
		// Enabling turn detection: absent fields take defaults, which the
		// TurnDetection unmarshaler already applies.
		td := &TurnDetection{}
		if err := decodeField(td, raw, "turn_detection"); err != nil {
			return err
		}
		s.TurnDetection = td
		return nil
	}
	var patch struct {
		Type              *string  `json:"type"`
		Threshold         *float64 `json:"threshold"`
		PrefixPaddingMs   *int     `json:"prefix_padding_ms"`
		PrefixMs          *int     `json:"prefix_ms"`
		SilenceDurationMs *int     `json:"silence_duration_ms"`
		SilenceMs         *int     `json:"silence_ms"`
		CreateResponse    *bool    `json:"create_response"`
		InterruptResponse *bool    `json:"interrupt_response"`
	}
	if err := decodeField(&patch, raw, "turn_detection"); err != nil {
		return err
	}
	td := s.TurnDetection
	if patch.Type != nil {
		td.Type = *patch.Type
	}
	if patch.Threshold != nil {
		td.Threshold = *patch.Threshold
	}
	if patch.PrefixMs != nil {
		td.PrefixPaddingMs = *patch.PrefixMs
	}
	if patch.PrefixPaddingMs != nil {
		td.PrefixPaddingMs = *patch.PrefixPaddingMs
	}
	if patch.SilenceMs != nil {
		td.SilenceDurationMs = *patch.SilenceMs
	}
	if patch.SilenceDurationMs != nil {
		td.SilenceDurationMs = *patch.SilenceDurationMs
	}
	if patch.CreateResponse != nil {
		td.CreateResponse = *patch.CreateResponse
	}
	if patch.InterruptResponse != nil {
		td.InterruptResponse = *patch.InterruptResponse
	}
	return nil
}

func decodeField(dst any, raw json.RawMessage, key string) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			if pe.Param == "" {
				return pe.WithParam("session." + key)
			}
			return pe
		}
		return Errorf(ErrInvalidRequest, "session.%s is invalid: %v", key, err).WithParam("session." + key)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}
