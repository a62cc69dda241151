package gateway

import (
	"slices"
	"time"

	"github.com/sotto-ai/sotto/pkg/audio"
	"github.com/sotto-ai/sotto/pkg/provider/vad"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// The wire audio format: 16-bit little-endian mono PCM at 24 kHz.
const (
	sampleRate    = 24000
	frameDuration = 20 * time.Millisecond
)

// defaultBufferCapacity bounds uncommitted input audio per session.
const defaultBufferCapacity = 30 * time.Second

// InputBuffer accumulates appended input audio until it is committed into a
// conversation item. Positions are absolute sample offsets on the session's
// input timeline: the write cursor advances with every append, the commit
// boundary advances as audio is sealed, and the bytes between the two are
// the pending region the capacity limit applies to.
//
// Not safe for concurrent use; the session actor owns it.
type InputBuffer struct {
	capBytes  int
	pending   []byte
	committed int64
	cursor    int64
}

// NewInputBuffer returns a buffer bounding pending audio at capacity.
// Non-positive capacities fall back to the 30 second default.
func NewInputBuffer(capacity time.Duration) *InputBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &InputBuffer{capBytes: audio.BytesForDuration(capacity, sampleRate)}
}

// Append adds decoded PCM to the pending region. On overrun the whole append
// is rejected and previously buffered audio is retained.
func (b *InputBuffer) Append(pcm []byte) error {
	if len(pcm)%audio.BytesPerSample != 0 {
		return realtime.NewError(realtime.ErrInvalidRequest,
			"audio must contain whole 16-bit samples").WithParam("audio")
	}
	if len(b.pending)+len(pcm) > b.capBytes {
		return realtime.Errorf(realtime.ErrInputAudioBufferOverrun,
			"input audio buffer is full: %v buffered, %v capacity",
			audio.Duration(len(b.pending), sampleRate),
			audio.Duration(b.capBytes, sampleRate))
	}
	b.pending = append(b.pending, pcm...)
	b.cursor += int64(len(pcm) / audio.BytesPerSample)
	return nil
}

// Clear drops all pending audio. The write cursor rewinds to the commit
// boundary so offsets stay aligned with the audio the buffer still holds.
func (b *InputBuffer) Clear() {
	b.pending = nil
	b.cursor = b.committed
}

// Commit seals everything pending and returns it.
func (b *InputBuffer) Commit() ([]byte, error) {
	return b.CommitTo(b.cursor)
}

// CommitTo seals the audio between the commit boundary and end, an absolute
// sample offset, and returns it. Audio past end stays pending, which lets a
// detected turn commit exactly up to its end-of-speech offset while samples
// that arrived after it wait for the next turn.
func (b *InputBuffer) CommitTo(end int64) ([]byte, error) {
	if end <= b.committed {
		return nil, realtime.NewError(realtime.ErrInvalidRequest, "input audio buffer is empty")
	}
	if end > b.cursor {
		return nil, realtime.Errorf(realtime.ErrInvalidRequest,
			"commit offset %d is past the write cursor %d", end, b.cursor)
	}
	n := int(end-b.committed) * audio.BytesPerSample
	sealed := slices.Clone(b.pending[:n])
	b.pending = append(b.pending[:0], b.pending[n:]...)
	b.committed = end
	return sealed, nil
}

// WriteCursor returns the absolute sample offset of the last appended sample.
func (b *InputBuffer) WriteCursor() int64 { return b.cursor }

// Committed returns the absolute sample offset of the commit boundary.
func (b *InputBuffer) Committed() int64 { return b.committed }

// Pending returns the byte count of uncommitted audio.
func (b *InputBuffer) Pending() int { return len(b.pending) }

// PendingDuration returns the duration of uncommitted audio.
func (b *InputBuffer) PendingDuration() time.Duration {
	return audio.Duration(len(b.pending), sampleRate)
}

// ─── turn detection ───

// turnEdge is a confirmed VAD edge positioned on the absolute sample
// timeline of the session's input.
type turnEdge struct {
	typ    vad.EventType
	offset int64
	prob   float64
}

// turnDetector frames appended input audio and runs it through a VAD
// session, translating the session-relative edge offsets onto the input
// buffer's absolute timeline.
type turnDetector struct {
	handle vad.SessionHandle
	framer *audio.Framer
	// base is the absolute sample offset of the VAD session's sample 0.
	base   int64
	active bool
}

func newTurnDetector(engine vad.Engine, td *realtime.TurnDetection, base int64) (*turnDetector, error) {
	handle, err := engine.NewSession(vad.Config{
		SampleRate:      sampleRate,
		FrameDuration:   frameDuration,
		Threshold:       td.Threshold,
		PrefixPadding:   time.Duration(td.PrefixPaddingMs) * time.Millisecond,
		SilenceDuration: time.Duration(td.SilenceDurationMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return &turnDetector{
		handle: handle,
		framer: audio.NewFramer(audio.FrameBytes(sampleRate, frameDuration)),
		base:   base,
	}, nil
}

// Feed pushes appended audio through the detector and returns confirmed
// edges in order. A partial trailing frame is carried until the next append
// completes it.
func (d *turnDetector) Feed(pcm []byte) ([]turnEdge, error) {
	var edges []turnEdge
	for _, frame := range d.framer.Push(pcm) {
		ev, err := d.handle.ProcessFrame(frame)
		if err != nil {
			return edges, err
		}
		switch ev.Type {
		case vad.EventSpeechStart:
			d.active = true
		case vad.EventSpeechEnd:
			d.active = false
		default:
			continue
		}
		edges = append(edges, turnEdge{typ: ev.Type, offset: d.base + int64(ev.Offset), prob: ev.Probability})
	}
	return edges, nil
}

// Reset rebases the detector at the given absolute sample offset and clears
// the partial frame and all detection state.
func (d *turnDetector) Reset(base int64) {
	d.framer.Reset()
	d.handle.Reset()
	d.base = base
	d.active = false
}

// Active reports whether the detector is inside a confirmed speech run.
func (d *turnDetector) Active() bool { return d.active }

func (d *turnDetector) Close() error { return d.handle.Close() }
