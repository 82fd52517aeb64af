package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kuuji/mmbridge/pkg/protocol"
)

var (
	// ErrClosed is returned once the client is closed.
	ErrClosed = errors.New("host link closed")

	// ErrDisconnected fails calls that were in flight when the connection
	// dropped.
	ErrDisconnected = errors.New("host link disconnected")
)

// ClientConfig holds configuration for a Client.
type ClientConfig struct {
	// URL is the bridge's WebSocket URL (e.g. "ws://127.0.0.1:7420/link").
	URL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Hello is sent as the first frame of every connection.
	Hello protocol.HelloFrame

	// Logger is the structured logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger

	// DialTimeout bounds each dial attempt. Defaults to 10s if zero.
	DialTimeout time.Duration

	// Reconnect controls automatic reconnection behavior.
	Reconnect ReconnectConfig
}

// ReconnectConfig controls the reconnection backoff strategy.
type ReconnectConfig struct {
	Enabled bool

	// InitialDelay defaults to 500ms.
	InitialDelay time.Duration

	// MaxDelay defaults to 15s.
	MaxDelay time.Duration

	// MaxAttempts is the maximum number of attempts. Zero means unlimited.
	MaxAttempts int
}

// Client is the JS runtime's end of the host link. It correlates call
// replies by id and queues events for Next.
type Client struct {
	cfg    ClientConfig
	log    *slog.Logger
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan protocol.Frame
	queue   []protocol.EventFrame
	closed  bool
	wake    chan struct{}
}

// NewClient creates a client. Call Connect to open the link.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     log.With("component", "hostlink-client"),
		done:    make(chan struct{}),
		pending: make(map[string]chan protocol.Frame),
		wake:    make(chan struct{}, 1),
	}
}

// Connect dials the bridge and sends hello. ctx bounds the first dial and
// the hello only; the link then stays up, reconnecting in the background
// if configured, until Close.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}
	if err := c.sendHello(ctx); err != nil {
		c.closeConn()
		return fmt.Errorf("sending hello: %w", err)
	}

	c.log.Info("connected to bridge", "url", c.cfg.URL)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	go c.receiveLoop(loopCtx)
	return nil
}

// Call invokes method on the bridge and waits for the reply. A bridge
// error is returned as *protocol.ErrorPayload.
func (c *Client) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan protocol.Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, conn, &protocol.CallFrame{ID: id, Method: method, Args: args}); err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		switch f := f.(type) {
		case *protocol.ResultFrame:
			return f.Result, nil
		case *protocol.ErrorFrame:
			return nil, &f.Error
		}
		return nil, fmt.Errorf("unexpected %q reply to %s", f.FrameType(), method)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Next returns the oldest received event, waiting for one if needed.
func (c *Client) Next(ctx context.Context) (protocol.EventFrame, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return ev, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return protocol.EventFrame{}, ErrClosed
		}

		select {
		case <-c.wake:
		case <-c.done:
		case <-ctx.Done():
			return protocol.EventFrame{}, ctx.Err()
		}
	}
}

// Close shuts the link down and waits for the receive loop to exit.
func (c *Client) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	timeout := c.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var opts *websocket.DialOptions
	if c.cfg.Token != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}},
		}
	}

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, opts)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) sendHello(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	hello := c.cfg.Hello
	return c.send(ctx, conn, &hello)
}

func (c *Client) send(ctx context.Context, conn *websocket.Conn, f protocol.Frame) error {
	data, err := protocol.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// closeConn closes the current connection and fails in-flight calls.
func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "closing") //nolint:errcheck
	}
}

func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	}()

	for {
		err := c.readFrames(ctx)
		if err == nil || ctx.Err() != nil {
			c.closeConn()
			return
		}

		c.log.Warn("connection lost", "error", err)
		c.closeConn()

		if !c.cfg.Reconnect.Enabled || !c.reconnect(ctx) {
			return
		}
	}
}

func (c *Client) readFrames(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		f, err := protocol.Unmarshal(data)
		if err != nil {
			c.log.Warn("ignoring malformed frame", "error", err)
			continue
		}

		switch f := f.(type) {
		case *protocol.EventFrame:
			c.mu.Lock()
			c.queue = append(c.queue, *f)
			c.mu.Unlock()
			select {
			case c.wake <- struct{}{}:
			default:
			}
		case *protocol.ResultFrame:
			c.deliver(f.ID, f)
		case *protocol.ErrorFrame:
			c.deliver(f.ID, f)
		default:
			c.log.Warn("ignoring unexpected frame", "type", f.FrameType())
		}
	}
}

func (c *Client) deliver(id string, f protocol.Frame) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("reply for unknown call", "id", id)
		return
	}
	ch <- f
}

// backoff returns initial * 2^(attempt-1), capped at ceiling.
func backoff(initial, ceiling time.Duration, attempt int) time.Duration {
	d := ceiling
	if attempt <= 62 {
		d = time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	}
	if d <= 0 || d > ceiling {
		d = ceiling
	}
	return d
}

func (c *Client) reconnect(ctx context.Context) bool {
	initial := c.cfg.Reconnect.InitialDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Reconnect.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 15 * time.Second
	}
	maxAttempts := c.cfg.Reconnect.MaxAttempts

	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		wait := backoff(initial, maxDelay, attempt)
		c.log.Info("reconnecting", "attempt", attempt, "backoff", wait)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}

		if err := c.dial(ctx); err != nil {
			c.log.Warn("reconnection failed", "attempt", attempt, "error", err)
			continue
		}
		if err := c.sendHello(ctx); err != nil {
			c.log.Warn("hello failed", "attempt", attempt, "error", err)
			c.closeConn()
			continue
		}

		c.log.Info("reconnected to bridge", "attempt", attempt)
		return true
	}

	c.log.Error("reconnection attempts exhausted")
	return false
}
