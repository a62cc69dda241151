package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/sotto-ai/sotto/pkg/provider/vad"
	vadmock "github.com/sotto-ai/sotto/pkg/provider/vad/mock"
	"github.com/sotto-ai/sotto/pkg/realtime"
)

// ─── TestInputBuffer_AppendCommit ────────────────────────────────────────────

// TestInputBuffer_AppendCommit verifies the offset algebra across appends
// and commits: the write cursor counts appended samples, the commit boundary
// follows sealed audio, and sealed bytes match what was appended.
func TestInputBuffer_AppendCommit(t *testing.T) {
	t.Parallel()

	b := NewInputBuffer(0)

	// 4800 bytes is 2400 samples, 100ms at 24 kHz.
	if err := b.Append(make([]byte, 4800)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := b.WriteCursor(); got != 2400 {
		t.Errorf("WriteCursor: want 2400, got %d", got)
	}
	if got := b.PendingDuration(); got != 100*time.Millisecond {
		t.Errorf("PendingDuration: want 100ms, got %v", got)
	}

	sealed, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(sealed) != 4800 {
		t.Errorf("sealed bytes: want 4800, got %d", len(sealed))
	}
	if got := b.Committed(); got != 2400 {
		t.Errorf("Committed: want 2400, got %d", got)
	}
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending after commit: want 0, got %d", got)
	}

	// The cursor keeps counting across commits.
	if err := b.Append(make([]byte, 960)); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if got := b.WriteCursor(); got != 2880 {
		t.Errorf("WriteCursor after second append: want 2880, got %d", got)
	}
}

// ─── TestInputBuffer_AppendOddBytes ──────────────────────────────────────────

// TestInputBuffer_AppendOddBytes verifies that audio with a torn sample is
// rejected without touching the buffer.
func TestInputBuffer_AppendOddBytes(t *testing.T) {
	t.Parallel()

	b := NewInputBuffer(0)
	err := b.Append(make([]byte, 961))
	pe := realtime.AsError(err)
	if pe == nil || pe.Kind != realtime.ErrInvalidRequest {
		t.Fatalf("odd append error: want %s, got %v", realtime.ErrInvalidRequest, err)
	}
	if pe.Param != "audio" {
		t.Errorf("error param: want %q, got %q", "audio", pe.Param)
	}
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending after rejected append: want 0, got %d", got)
	}
}

// ─── TestInputBuffer_Overrun ─────────────────────────────────────────────────

// TestInputBuffer_Overrun verifies that an append past capacity is rejected
// as a whole and that the audio already buffered stays committable.
func TestInputBuffer_Overrun(t *testing.T) {
	t.Parallel()

	// 100ms capacity is 4800 bytes.
	b := NewInputBuffer(100 * time.Millisecond)
	if err := b.Append(make([]byte, 4800)); err != nil {
		t.Fatalf("Append at capacity: %v", err)
	}

	err := b.Append(make([]byte, 2))
	if got := realtime.AsError(err).Kind; got != realtime.ErrInputAudioBufferOverrun {
		t.Fatalf("overrun error kind: want %s, got %v", realtime.ErrInputAudioBufferOverrun, err)
	}

	sealed, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit after overrun: %v", err)
	}
	if len(sealed) != 4800 {
		t.Errorf("sealed bytes after overrun: want 4800, got %d", len(sealed))
	}
}

// ─── TestInputBuffer_CommitToPartial ─────────────────────────────────────────

// TestInputBuffer_CommitToPartial verifies that committing to a mid-stream
// offset seals exactly the leading region and leaves the rest pending.
func TestInputBuffer_CommitToPartial(t *testing.T) {
	t.Parallel()

	b := NewInputBuffer(0)
	data := make([]byte, 9600)
	for i := range data {
		data[i] = byte(i)
	}
	if err := b.Append(data); err != nil {
		t.Fatalf("Append: %v", err)
	}

	sealed, err := b.CommitTo(2400)
	if err != nil {
		t.Fatalf("CommitTo(2400): %v", err)
	}
	if len(sealed) != 4800 {
		t.Fatalf("sealed bytes: want 4800, got %d", len(sealed))
	}
	if sealed[0] != data[0] || sealed[4799] != data[4799] {
		t.Error("sealed region does not match the appended leading bytes")
	}
	if got := b.Pending(); got != 4800 {
		t.Errorf("Pending after partial commit: want 4800, got %d", got)
	}
	if got := b.WriteCursor(); got != 4800 {
		t.Errorf("WriteCursor after partial commit: want 4800, got %d", got)
	}

	rest, err := b.Commit()
	if err != nil {
		t.Fatalf("Commit of remainder: %v", err)
	}
	if len(rest) != 4800 {
		t.Fatalf("remainder bytes: want 4800, got %d", len(rest))
	}
	if rest[0] != data[4800] {
		t.Error("remainder does not start where the partial commit ended")
	}
}

// ─── TestInputBuffer_CommitErrors ────────────────────────────────────────────

// TestInputBuffer_CommitErrors verifies the empty-buffer and past-cursor
// rejections.
func TestInputBuffer_CommitErrors(t *testing.T) {
	t.Parallel()

	b := NewInputBuffer(0)

	if _, err := b.Commit(); realtime.AsError(err).Kind != realtime.ErrInvalidRequest {
		t.Errorf("empty commit: want %s, got %v", realtime.ErrInvalidRequest, err)
	}

	if err := b.Append(make([]byte, 960)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := b.CommitTo(10000); realtime.AsError(err).Kind != realtime.ErrInvalidRequest {
		t.Errorf("past-cursor commit: want %s, got %v", realtime.ErrInvalidRequest, err)
	}

	if _, err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Committing the same region twice is an empty commit.
	if _, err := b.CommitTo(480); realtime.AsError(err).Kind != realtime.ErrInvalidRequest {
		t.Errorf("re-commit of sealed region: want %s, got %v", realtime.ErrInvalidRequest, err)
	}
}

// ─── TestInputBuffer_ClearRewindsCursor ──────────────────────────────────────

// TestInputBuffer_ClearRewindsCursor verifies that clearing drops pending
// audio and rewinds the write cursor to the commit boundary.
func TestInputBuffer_ClearRewindsCursor(t *testing.T) {
	t.Parallel()

	b := NewInputBuffer(0)
	if err := b.Append(make([]byte, 4800)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := b.Append(make([]byte, 960)); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	b.Clear()
	if got := b.Pending(); got != 0 {
		t.Errorf("Pending after clear: want 0, got %d", got)
	}
	if got := b.WriteCursor(); got != 2400 {
		t.Errorf("WriteCursor after clear: want commit boundary 2400, got %d", got)
	}

	// New audio lands right after the boundary.
	if err := b.Append(make([]byte, 960)); err != nil {
		t.Fatalf("Append after clear: %v", err)
	}
	if got := b.WriteCursor(); got != 2880 {
		t.Errorf("WriteCursor after post-clear append: want 2880, got %d", got)
	}
}

// ─── TestTurnDetector_FrameCarry ─────────────────────────────────────────────

// TestTurnDetector_FrameCarry verifies that appended audio is re-framed to
// the detector's 20ms frame size, with partial trailing bytes carried into
// the next feed.
func TestTurnDetector_FrameCarry(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{}
	det, err := newTurnDetector(&vadmock.Engine{Session: sess}, realtime.DefaultTurnDetection(), 0)
	if err != nil {
		t.Fatalf("newTurnDetector: %v", err)
	}
	t.Cleanup(func() { _ = det.Close() })

	if _, err := det.Feed(make([]byte, 1000)); err != nil {
		t.Fatalf("Feed(1000): %v", err)
	}
	if got := len(sess.ProcessFrameCalls); got != 1 {
		t.Fatalf("frames after 1000 bytes: want 1, got %d", got)
	}

	if _, err := det.Feed(make([]byte, 920)); err != nil {
		t.Fatalf("Feed(920): %v", err)
	}
	if got := len(sess.ProcessFrameCalls); got != 2 {
		t.Fatalf("frames after carry completion: want 2, got %d", got)
	}
	for i, call := range sess.ProcessFrameCalls {
		if len(call.Frame) != 960 {
			t.Errorf("frame %d size: want 960, got %d", i, len(call.Frame))
		}
	}
}

// ─── TestTurnDetector_AbsoluteOffsets ────────────────────────────────────────

// TestTurnDetector_AbsoluteOffsets verifies that session-relative VAD
// offsets are rebased onto the detector's absolute input timeline and that
// the active flag follows the edges.
func TestTurnDetector_AbsoluteOffsets(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{
		Events: []vad.Event{
			{Type: vad.EventSpeechStart, Offset: 480, Probability: 0.9},
			{Type: vad.EventSpeechEnd, Offset: 1440, Probability: 0.1},
		},
	}
	det, err := newTurnDetector(&vadmock.Engine{Session: sess}, realtime.DefaultTurnDetection(), 0)
	if err != nil {
		t.Fatalf("newTurnDetector: %v", err)
	}
	t.Cleanup(func() { _ = det.Close() })

	edges, err := det.Feed(make([]byte, 2880))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("edges: want 2, got %d", len(edges))
	}
	if edges[0].typ != vad.EventSpeechStart || edges[0].offset != 480 {
		t.Errorf("first edge: want speech_start@480, got %s@%d", edges[0].typ, edges[0].offset)
	}
	if edges[1].typ != vad.EventSpeechEnd || edges[1].offset != 1440 {
		t.Errorf("second edge: want speech_end@1440, got %s@%d", edges[1].typ, edges[1].offset)
	}
	if det.Active() {
		t.Error("Active after speech end: want false")
	}
}

// ─── TestTurnDetector_Rebase ─────────────────────────────────────────────────

// TestTurnDetector_Rebase verifies that Reset clears the partial frame,
// resets the VAD session and rebases subsequent edge offsets.
func TestTurnDetector_Rebase(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{
		Events: []vad.Event{
			{Type: vad.EventSpeechStart, Offset: 100, Probability: 0.8},
		},
	}
	det, err := newTurnDetector(&vadmock.Engine{Session: sess}, realtime.DefaultTurnDetection(), 0)
	if err != nil {
		t.Fatalf("newTurnDetector: %v", err)
	}
	t.Cleanup(func() { _ = det.Close() })

	// A partial frame sits in the framer when the reset arrives.
	if _, err := det.Feed(make([]byte, 500)); err != nil {
		t.Fatalf("Feed(500): %v", err)
	}
	det.Reset(7200)
	if sess.ResetCallCount != 1 {
		t.Errorf("VAD session resets: want 1, got %d", sess.ResetCallCount)
	}

	edges, err := det.Feed(make([]byte, 960))
	if err != nil {
		t.Fatalf("Feed after reset: %v", err)
	}
	// The carried 500 bytes were dropped: exactly one full frame reached
	// the VAD session.
	if got := len(sess.ProcessFrameCalls); got != 1 {
		t.Fatalf("frames processed: want 1, got %d", got)
	}
	if len(edges) != 1 {
		t.Fatalf("edges: want 1, got %d", len(edges))
	}
	if edges[0].offset != 7300 {
		t.Errorf("rebased edge offset: want 7300, got %d", edges[0].offset)
	}
}

// ─── TestTurnDetector_ConfigMapping ──────────────────────────────────────────

// TestTurnDetector_ConfigMapping verifies that session turn_detection
// settings reach the VAD engine in its native units.
func TestTurnDetector_ConfigMapping(t *testing.T) {
	t.Parallel()

	eng := &vadmock.Engine{}
	td := &realtime.TurnDetection{
		Type:              realtime.TurnDetectionServerVAD,
		Threshold:         0.7,
		PrefixPaddingMs:   200,
		SilenceDurationMs: 400,
	}
	det, err := newTurnDetector(eng, td, 0)
	if err != nil {
		t.Fatalf("newTurnDetector: %v", err)
	}
	t.Cleanup(func() { _ = det.Close() })

	if len(eng.NewSessionCalls) != 1 {
		t.Fatalf("NewSession calls: want 1, got %d", len(eng.NewSessionCalls))
	}
	want := vad.Config{
		SampleRate:      24000,
		FrameDuration:   20 * time.Millisecond,
		Threshold:       0.7,
		PrefixPadding:   200 * time.Millisecond,
		SilenceDuration: 400 * time.Millisecond,
	}
	if got := eng.NewSessionCalls[0].Cfg; got != want {
		t.Errorf("VAD config: want %+v, got %+v", want, got)
	}
}

// ─── TestTurnDetector_Failures ───────────────────────────────────────────────

// TestTurnDetector_Failures verifies that engine construction errors and
// frame processing errors surface to the caller.
func TestTurnDetector_Failures(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model not loaded")
	if _, err := newTurnDetector(&vadmock.Engine{NewSessionErr: wantErr}, realtime.DefaultTurnDetection(), 0); !errors.Is(err, wantErr) {
		t.Errorf("construction error: want %v, got %v", wantErr, err)
	}

	sess := &vadmock.Session{ProcessFrameErr: errors.New("inference failed")}
	det, err := newTurnDetector(&vadmock.Engine{Session: sess}, realtime.DefaultTurnDetection(), 0)
	if err != nil {
		t.Fatalf("newTurnDetector: %v", err)
	}
	t.Cleanup(func() { _ = det.Close() })

	if _, err := det.Feed(make([]byte, 960)); err == nil {
		t.Error("Feed with failing session: want error, got nil")
	}
}
