package server

import (
	"context"
	"io"

	"github.com/coder/websocket"

	"github.com/sotto-ai/sotto/internal/gateway"
)

// maxFrameBytes bounds one client text frame. A minute of base64 PCM16 at
// 24 kHz is under 4 MiB, so the cap never bites a well-behaved client while
// still bounding per-read memory.
const maxFrameBytes = 4 << 20

// wsTransport adapts a coder/websocket connection to the gateway transport.
// The session owns all reads and writes, so no extra locking is needed here.
type wsTransport struct {
	conn *websocket.Conn
}

var _ gateway.Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn) *wsTransport {
	// The library limit sits above the protocol cap so oversized frames
	// surface as ErrFrameTooLarge (close 4400) instead of the library's
	// own 1009 close.
	conn.SetReadLimit(maxFrameBytes + 1024)
	return &wsTransport{conn: conn}
}

// ReadMessage returns the next text frame. Binary frames and frames over
// maxFrameBytes are protocol violations; the connection is left mid-message
// in those cases, which is fine because both errors end the session.
func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	typ, r, err := t.conn.Reader(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, gateway.ErrNonTextFrame
	}
	data, err := io.ReadAll(io.LimitReader(r, maxFrameBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFrameBytes {
		return nil, gateway.ErrFrameTooLarge
	}
	return data, nil
}

// WriteMessage writes one text frame.
func (t *wsTransport) WriteMessage(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close sends a close frame with the given status code and reason.
func (t *wsTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
