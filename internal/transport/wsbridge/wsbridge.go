// internal/transport/wsbridge/wsbridge.go
//
// Websocket chat-bridge client: the bundled Messenger implementation.
//
// The bridge speaks line-delimited JSON frames over a single websocket:
//
//   client → bridge:
//     {"op":"send","seq":1,"chatId":-100,"text":"Zephyr"}
//     {"op":"history","seq":2,"chatId":-100,"limit":10}
//   bridge → client:
//     {"op":"message","message":{...}}                      unsolicited inbound
//     {"op":"ack","seq":1,"id":42}                          send confirmed
//     {"op":"rate_limited","seq":1,"retryAfterMs":3000}     back off and retry
//     {"op":"history","seq":2,"messages":[...]}             newest first
//     {"op":"error","seq":2,"error":"..."}
//
// Requests are correlated by a monotonically increasing seq; the read loop
// routes responses to waiting callers and pushes unsolicited messages to the
// OnMessage callback. The connection reconnects with a capped backoff.

package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/UltimatePolymath/word/internal/transport"
)

const (
	writeTimeout     = 10 * time.Second
	requestTimeout   = 15 * time.Second
	maxReconnectWait = 30 * time.Second
)

// frame is the wire format in both directions.
type frame struct {
	Op           string              `json:"op"`
	Seq          uint64              `json:"seq,omitempty"`
	ChatID       int64               `json:"chatId,omitempty"`
	Text         string              `json:"text,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	ID           int64               `json:"id,omitempty"`
	RetryAfterMs int64               `json:"retryAfterMs,omitempty"`
	Error        string              `json:"error,omitempty"`
	Message      *transport.Message  `json:"message,omitempty"`
	Messages     []transport.Message `json:"messages,omitempty"`
}

// Client is a reconnecting websocket bridge connection.
type Client struct {
	url string

	// OnMessage receives unsolicited inbound chat messages. Set before
	// Connect; called from the read loop goroutine.
	OnMessage func(transport.Message)

	seq     atomic.Uint64
	wmu     sync.Mutex // guards writes to conn
	mu      sync.Mutex // guards conn/pending lifecycle
	conn    *websocket.Conn
	pending map[uint64]chan frame
	closed  chan struct{}
}

// New constructs a Client for the given ws:// or wss:// URL.
func New(url string) *Client {
	return &Client{
		url:     url,
		pending: make(map[uint64]chan frame),
		closed:  make(chan struct{}),
	}
}

// Connect dials the bridge and starts the read loop. It returns after the
// first successful dial; subsequent disconnects reconnect in the background
// until ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(ctx)
	return nil
}

// Close tears the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Send implements transport.Messenger.
func (c *Client) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	resp, err := c.request(ctx, frame{Op: "send", ChatID: chatID, Text: text})
	if err != nil {
		return 0, err
	}
	switch resp.Op {
	case "ack":
		return resp.ID, nil
	case "rate_limited":
		return 0, &transport.RateLimitedError{RetryAfter: time.Duration(resp.RetryAfterMs) * time.Millisecond}
	case "error":
		return 0, errors.New(resp.Error)
	}
	return 0, fmt.Errorf("unexpected bridge reply %q", resp.Op)
}

// History implements transport.Messenger. Messages come back newest first.
func (c *Client) History(ctx context.Context, chatID int64, limit int) ([]transport.Message, error) {
	resp, err := c.request(ctx, frame{Op: "history", ChatID: chatID, Limit: limit})
	if err != nil {
		return nil, err
	}
	if resp.Op == "error" {
		return nil, errors.New(resp.Error)
	}
	return resp.Messages, nil
}

// request writes a frame with a fresh seq and waits for its correlated reply.
func (c *Client) request(ctx context.Context, f frame) (frame, error) {
	f.Seq = c.seq.Add(1)
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return frame{}, errors.New("bridge not connected")
	}
	c.pending[f.Seq] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return frame{}, err
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return frame{}, errors.New("bridge request timed out")
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-c.closed:
		return frame{}, errors.New("bridge closed")
	}
}

func (c *Client) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("bridge not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop drains frames, routing replies by seq and pushing inbound chat
// messages to OnMessage. On read failure it reconnects with capped backoff.
func (c *Client) readLoop(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			if !c.reconnect(ctx, &backoff) {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("bridge read failed, reconnecting")
			c.mu.Lock()
			_ = conn.Close()
			c.conn = nil
			c.mu.Unlock()
			continue
		}
		backoff = time.Second

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("bridge sent malformed frame")
			continue
		}

		if f.Op == "message" {
			if f.Message != nil && c.OnMessage != nil {
				c.OnMessage(*f.Message)
			}
			continue
		}
		c.mu.Lock()
		ch := c.pending[f.Seq]
		c.mu.Unlock()
		if ch != nil {
			ch <- f
		}
	}
}

func (c *Client) reconnect(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-time.After(*backoff):
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
	if *backoff < maxReconnectWait {
		*backoff *= 2
	}
	conn, err := c.dial(ctx)
	if err != nil {
		log.Warn().Err(err).Dur("nextTry", *backoff).Msg("bridge reconnect failed")
		return true
	}
	log.Info().Str("url", c.url).Msg("bridge reconnected")
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return true
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}
