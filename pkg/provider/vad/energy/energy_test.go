package energy

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/sotto-ai/sotto/pkg/provider/vad"
)

const (
	testRate     = 24000
	frameSamples = 480 // 20 ms at 24 kHz
)

func testConfig() vad.Config {
	return vad.Config{
		SampleRate:      testRate,
		FrameDuration:   20 * time.Millisecond,
		Threshold:       0.5,
		PrefixPadding:   100 * time.Millisecond, // 5 frames
		SilenceDuration: 200 * time.Millisecond, // 10 frames
	}
}

// loudFrame is a square wave well above the default threshold.
func loudFrame() []byte {
	out := make([]byte, frameSamples*2)
	for i := 0; i < frameSamples; i++ {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func quietFrame() []byte {
	return make([]byte, frameSamples*2)
}

func feed(t *testing.T, s vad.SessionHandle, frame []byte, n int) []vad.Event {
	t.Helper()
	var events []vad.Event
	for i := 0; i < n; i++ {
		ev, err := s.ProcessFrame(frame)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if ev.Type != vad.EventNone {
			events = append(events, ev)
		}
	}
	return events
}

// TestSpeechStartConfirmation verifies an onset fires only after the prefix
// window and is backdated to the first loud frame.
func TestSpeechStartConfirmation(t *testing.T) {
	eng := New()
	s, err := eng.NewSession(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if events := feed(t, s, quietFrame(), 3); len(events) != 0 {
		t.Fatalf("silence produced events: %v", events)
	}
	if events := feed(t, s, loudFrame(), 4); len(events) != 0 {
		t.Fatalf("unconfirmed speech produced events: %v", events)
	}
	events := feed(t, s, loudFrame(), 1)
	if len(events) != 1 || events[0].Type != vad.EventSpeechStart {
		t.Fatalf("events = %v, want one speech_start", events)
	}
	if want := 3 * frameSamples; events[0].Offset != want {
		t.Errorf("onset offset = %d, want %d (first loud frame)", events[0].Offset, want)
	}
}

// TestShortBlipIgnored verifies a loud run broken before confirmation never
// fires.
func TestShortBlipIgnored(t *testing.T) {
	eng := New()
	s, _ := eng.NewSession(testConfig())
	defer s.Close()

	feed(t, s, loudFrame(), 3)
	feed(t, s, quietFrame(), 1)
	if events := feed(t, s, loudFrame(), 4); len(events) != 0 {
		t.Fatalf("restarted run fired too early: %v", events)
	}
	events := feed(t, s, loudFrame(), 1)
	if len(events) != 1 || events[0].Type != vad.EventSpeechStart {
		t.Fatalf("events = %v, want one speech_start", events)
	}
	if want := 4 * frameSamples; events[0].Offset != want {
		t.Errorf("onset offset = %d, want %d (run restart)", events[0].Offset, want)
	}
}

// TestSpeechEndAfterSilence verifies the falling edge fires after the
// configured silence and marks the first silent sample.
func TestSpeechEndAfterSilence(t *testing.T) {
	eng := New()
	s, _ := eng.NewSession(testConfig())
	defer s.Close()

	feed(t, s, loudFrame(), 5) // confirmed onset
	if events := feed(t, s, quietFrame(), 9); len(events) != 0 {
		t.Fatalf("silence fired early: %v", events)
	}
	events := feed(t, s, quietFrame(), 1)
	if len(events) != 1 || events[0].Type != vad.EventSpeechEnd {
		t.Fatalf("events = %v, want one speech_end", events)
	}
	if want := 5 * frameSamples; events[0].Offset != want {
		t.Errorf("end offset = %d, want %d (first silent frame)", events[0].Offset, want)
	}
}

// TestSilenceRunBrokenBySpeech verifies a loud frame inside the silence
// window keeps the turn alive.
func TestSilenceRunBrokenBySpeech(t *testing.T) {
	eng := New()
	s, _ := eng.NewSession(testConfig())
	defer s.Close()

	feed(t, s, loudFrame(), 5)
	feed(t, s, quietFrame(), 9)
	feed(t, s, loudFrame(), 1) // resets the silence run
	if events := feed(t, s, quietFrame(), 9); len(events) != 0 {
		t.Fatalf("silence fired early after reset: %v", events)
	}
	events := feed(t, s, quietFrame(), 1)
	if len(events) != 1 || events[0].Type != vad.EventSpeechEnd {
		t.Fatalf("events = %v, want one speech_end", events)
	}
}

// TestReset verifies detection state and the sample position rewind.
func TestReset(t *testing.T) {
	eng := New()
	s, _ := eng.NewSession(testConfig())
	defer s.Close()

	feed(t, s, loudFrame(), 5)
	s.Reset()

	events := feed(t, s, loudFrame(), 5)
	if len(events) != 1 || events[0].Type != vad.EventSpeechStart {
		t.Fatalf("events after reset = %v, want one speech_start", events)
	}
	if events[0].Offset != 0 {
		t.Errorf("offset after reset = %d, want 0", events[0].Offset)
	}
}

// TestProbabilityMapping verifies the dBFS normalization endpoints.
func TestProbabilityMapping(t *testing.T) {
	if p := Probability(quietFrame()); p != 0 {
		t.Errorf("silence probability = %f, want 0", p)
	}
	if p := Probability(loudFrame()); p < 0.7 || p > 0.9 {
		t.Errorf("loud probability = %f, want ~0.8", p)
	}
	full := make([]byte, frameSamples*2)
	for i := 0; i < frameSamples; i++ {
		v := int16(32767)
		if i%2 == 1 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(full[i*2:], uint16(v))
	}
	if p := Probability(full); p < 0.99 {
		t.Errorf("full-scale probability = %f, want ~1", p)
	}
}

// TestClosedSession verifies ProcessFrame fails after Close.
func TestClosedSession(t *testing.T) {
	eng := New()
	s, _ := eng.NewSession(testConfig())
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Error("second Close should be nil")
	}
	if _, err := s.ProcessFrame(quietFrame()); err == nil {
		t.Error("ProcessFrame after Close should fail")
	}
}

// TestInvalidConfig verifies constructor validation.
func TestInvalidConfig(t *testing.T) {
	eng := New()
	if _, err := eng.NewSession(vad.Config{SampleRate: 0}); err == nil {
		t.Error("zero sample rate should fail")
	}
	if _, err := eng.NewSession(vad.Config{SampleRate: testRate, Threshold: 1.5}); err == nil {
		t.Error("threshold above 1 should fail")
	}
}
