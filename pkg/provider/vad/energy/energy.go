// Package energy implements a dependency-free VAD engine based on frame
// energy. Frame RMS is mapped onto a dBFS scale and normalized so that 0 dB
// reports probability 1.0 and the -60 dB noise floor reports 0.0; the
// default 0.5 threshold then corresponds to roughly -30 dBFS, a reasonable
// gate for close-mic speech. It is the fallback engine when no model-based
// detector is configured.
package energy

import (
	"errors"
	"time"

	"github.com/sotto-ai/sotto/pkg/audio"
	"github.com/sotto-ai/sotto/pkg/provider/vad"
)

// dBFS range mapped onto probability [0, 1].
const floorDB = 60.0

// Engine creates energy-gate detection sessions.
type Engine struct{}

// New returns the energy VAD engine.
func New() *Engine { return &Engine{} }

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: sample rate must be positive")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, errors.New("energy: threshold must be in [0, 1]")
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	return &session{cfg: cfg, loudStart: -1, quietStart: -1}, nil
}

type session struct {
	cfg    vad.Config
	closed bool

	// pos is the sample position after the frames consumed so far.
	pos int

	speaking bool
	// loudStart and quietStart mark the sample positions where the current
	// above- and below-threshold runs began. -1 when no run is active.
	loudStart  int
	quietStart int
}

var _ vad.SessionHandle = (*session)(nil)

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}

	frameStart := s.pos
	samples := len(frame) / audio.BytesPerSample
	s.pos += samples

	prob := Probability(frame)
	loud := prob >= s.cfg.Threshold

	ev := vad.Event{Type: vad.EventNone, Probability: prob}
	if !s.speaking {
		if loud {
			if s.loudStart < 0 {
				s.loudStart = frameStart
			}
			if s.runDuration(s.loudStart) >= s.cfg.PrefixPadding {
				s.speaking = true
				s.quietStart = -1
				ev.Type = vad.EventSpeechStart
				ev.Offset = s.loudStart
			}
		} else {
			s.loudStart = -1
		}
		return ev, nil
	}

	if loud {
		s.quietStart = -1
		return ev, nil
	}
	if s.quietStart < 0 {
		s.quietStart = frameStart
	}
	if s.runDuration(s.quietStart) >= s.cfg.SilenceDuration {
		s.speaking = false
		ev.Type = vad.EventSpeechEnd
		ev.Offset = s.quietStart
		s.loudStart, s.quietStart = -1, -1
	}
	return ev, nil
}

// runDuration is the time covered from the run start to the current
// position.
func (s *session) runDuration(start int) time.Duration {
	return audio.Duration((s.pos-start)*audio.BytesPerSample, s.cfg.SampleRate)
}

func (s *session) Reset() {
	if s.closed {
		return
	}
	s.pos = 0
	s.speaking = false
	s.loudStart, s.quietStart = -1, -1
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// Probability maps a PCM16 frame's RMS level onto [0, 1] along the dBFS
// scale used by the engine.
func Probability(frame []byte) float64 {
	db := audio.DBFS(audio.RMS(frame))
	p := 1 + db/floorDB
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
