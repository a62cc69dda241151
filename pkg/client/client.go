// Package client is a typed Go client for the realtime speech gateway.
//
// A Client owns one WebSocket connection. Outbound client events are sent
// through typed helpers; inbound server events arrive decoded on the Events
// channel. The client performs no audio processing itself: callers feed raw
// PCM16 to AppendAudio and decode the base64 audio deltas carried by
// response events.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/sotto-ai/sotto/pkg/realtime"
)

// eventBuffer is the capacity of the Events channel. A slow consumer stalls
// the read loop once it fills, which in turn backpressures the server.
const eventBuffer = 32

// Option is a functional option for Dial.
type Option func(*dialConfig)

type dialConfig struct {
	apiKey     string
	intent     realtime.Intent
	httpClient *http.Client
}

// WithAPIKey presents key as an Authorization bearer token.
func WithAPIKey(key string) Option {
	return func(c *dialConfig) { c.apiKey = key }
}

// WithIntent selects the session intent. The default is conversation.
func WithIntent(intent realtime.Intent) Option {
	return func(c *dialConfig) { c.intent = intent }
}

// WithHTTPClient overrides the HTTP client used for the WebSocket
// handshake. Primarily used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *dialConfig) { c.httpClient = hc }
}

// Client is one realtime session. Safe for concurrent use: sends may come
// from any goroutine while one consumer drains Events.
type Client struct {
	conn   *websocket.Conn
	events chan realtime.ServerEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	errVal error

	closeOnce sync.Once
}

// Dial connects to the gateway at baseURL and starts the session. baseURL
// may use an http(s) or ws(s) scheme; the /v1/realtime path is appended.
// The first event on Events is session.created.
func Dial(ctx context.Context, baseURL, model string, opts ...Option) (*Client, error) {
	var cfg dialConfig
	for _, o := range opts {
		o(&cfg)
	}

	endpoint, err := endpointURL(baseURL, model, cfg.intent)
	if err != nil {
		return nil, err
	}

	hdr := http.Header{}
	if cfg.apiKey != "" {
		hdr.Set("Authorization", "Bearer "+cfg.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient: cfg.httpClient,
		HTTPHeader: hdr,
	})
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		events: make(chan realtime.ServerEvent, eventBuffer),
		ctx:    sessCtx,
		cancel: sessCancel,
	}
	go c.receiveLoop()
	return c, nil
}

// endpointURL builds the WebSocket URL from the configured base.
func endpointURL(baseURL, model string, intent realtime.Intent) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/realtime"
	q := u.Query()
	q.Set("model", model)
	if intent != "" {
		q.Set("intent", string(intent))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// receiveLoop reads server events and delivers them on the events channel.
// It owns the channel: it closes it when it exits.
func (c *Client) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(err)
			return
		}

		ev, err := realtime.ParseServerEvent(data)
		if err != nil {
			// Unknown event types are skipped so servers can add to the
			// protocol without breaking older clients.
			continue
		}

		select {
		case c.events <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

// Events returns the stream of decoded server events. The channel closes
// when the connection ends; check Err afterwards to distinguish a clean
// close from a failure.
func (c *Client) Events() <-chan realtime.ServerEvent { return c.events }

// Err returns the error that ended the connection, or nil after a close
// initiated by Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// CloseStatus returns the WebSocket close code that ended the connection,
// or -1 when it did not end with a close frame.
func (c *Client) CloseStatus() websocket.StatusCode {
	return websocket.CloseStatus(c.Err())
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

// Close ends the session with a normal closure.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

// Send transmits any client event. The typed helpers below cover the
// built-in event set.
func (c *Client) Send(ctx context.Context, ev realtime.ClientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("client: marshal %s: %w", ev.ClientEventType(), err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("client: write %s: %w", ev.ClientEventType(), err)
	}
	return nil
}

// UpdateSession patches the session configuration. patch is any
// JSON-marshalable value shaped like the session resource, e.g.
// map[string]any{"voice": "cedar"}.
func (c *Client) UpdateSession(ctx context.Context, patch any) error {
	ev, err := realtime.NewSessionUpdate(patch)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return c.Send(ctx, ev)
}

// AppendAudio appends raw PCM16 samples to the input audio buffer.
func (c *Client) AppendAudio(ctx context.Context, pcm []byte) error {
	return c.Send(ctx, realtime.NewInputAudioBufferAppend(base64.StdEncoding.EncodeToString(pcm)))
}

// CommitAudio seals buffered audio into a user message item.
func (c *Client) CommitAudio(ctx context.Context) error {
	return c.Send(ctx, realtime.NewInputAudioBufferCommit())
}

// ClearAudio drops buffered, uncommitted audio.
func (c *Client) ClearAudio(ctx context.Context) error {
	return c.Send(ctx, realtime.NewInputAudioBufferClear())
}

// CreateItem appends a conversation item to the log.
func (c *Client) CreateItem(ctx context.Context, item *realtime.Item) error {
	return c.Send(ctx, realtime.NewConversationItemCreate(item))
}

// TruncateItem shortens a played assistant audio part after an
// interruption so the log matches what the user actually heard.
func (c *Client) TruncateItem(ctx context.Context, itemID string, contentIndex, audioEndMs int) error {
	return c.Send(ctx, realtime.NewConversationItemTruncate(itemID, contentIndex, audioEndMs))
}

// DeleteItem removes a conversation item.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.Send(ctx, realtime.NewConversationItemDelete(itemID))
}

// CreateResponse asks the server to generate a model response.
func (c *Client) CreateResponse(ctx context.Context, overrides *realtime.ResponseOverrides) error {
	return c.Send(ctx, realtime.NewResponseCreate(overrides))
}

// CancelResponse cancels the in-flight response, if any.
func (c *Client) CancelResponse(ctx context.Context) error {
	return c.Send(ctx, realtime.NewResponseCancel())
}
