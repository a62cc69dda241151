package audio

// Framer slices a byte stream into fixed-size frames, carrying partial
// frames across pushes. It is not safe for concurrent use.
type Framer struct {
	size int
	buf  []byte
}

// NewFramer returns a Framer producing frames of size bytes.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = BytesPerSample
	}
	return &Framer{size: size}
}

// Push appends p to the carry buffer and returns every complete frame now
// available. Returned frames are copies and remain valid after further
// pushes.
func (f *Framer) Push(p []byte) [][]byte {
	f.buf = append(f.buf, p...)
	var frames [][]byte
	for len(f.buf) >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Flush returns the buffered partial frame, if any, and resets the carry.
func (f *Framer) Flush() []byte {
	if len(f.buf) == 0 {
		return nil
	}
	rest := make([]byte, len(f.buf))
	copy(rest, f.buf)
	f.buf = f.buf[:0]
	return rest
}

// Buffered reports how many carry bytes are waiting for the next frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Reset drops any carried bytes.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
