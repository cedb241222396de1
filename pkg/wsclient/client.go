// Package wsclient is the consumer side of the real-time channel: a
// connection that re-dials once after an unexpected drop, plus a local table
// of event listeners.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"taskplanner/internal/websocket"

	gorillaws "github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
	maxRejectionBody        = 4096
)

var (
	// ErrNoActiveSession is returned by Connect when no token is stored.
	ErrNoActiveSession = errors.New("no active session")
	// ErrClosed is returned to a Connect that was overtaken by Disconnect.
	ErrClosed = errors.New("client disconnected")
)

// HandshakeError is returned when the server refuses the upgrade. Reason is
// the server's rejection message, e.g. "Token inválido".
type HandshakeError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("handshake rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("handshake rejected with status %d (%s): %v", e.StatusCode, e.Reason, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func newHandshakeError(resp *http.Response, err error) *HandshakeError {
	herr := &HandshakeError{StatusCode: resp.StatusCode, Err: err}
	if resp.Body == nil {
		return herr
	}

	var body struct {
		Message string `json:"message"`
	}
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxRejectionBody)).Decode(&body); decodeErr == nil {
		herr.Reason = body.Message
	}
	return herr
}

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Options struct {
	// URL of the WebSocket endpoint, e.g. ws://localhost:8080/api/v1/ws.
	URL            string
	Session        Session
	ReconnectDelay time.Duration
	Dialer         *gorillaws.Dialer
	Logger         *slog.Logger
}

// attempt is the single in-flight Connect. Concurrent callers wait on it.
type attempt struct {
	done chan struct{}
	err  error
}

type Client struct {
	url      string
	session  Session
	delay    time.Duration
	dialer   *gorillaws.Dialer
	logger   *slog.Logger
	handlers *Listeners

	mu        sync.Mutex
	state     State
	conn      *gorillaws.Conn
	pending   *attempt
	reconnect *time.Timer
	// epoch advances on every Disconnect so late dials and timers can tell
	// they belong to an ended session.
	epoch uint64

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &gorillaws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "wsclient")

	return &Client{
		url:      opts.URL,
		session:  opts.Session,
		delay:    opts.ReconnectDelay,
		dialer:   opts.Dialer,
		logger:   logger,
		handlers: NewListeners(logger),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Listeners exposes the listener table. It survives reconnects and is only
// cleared by Disconnect.
func (c *Client) Listeners() *Listeners {
	return c.handlers
}

func (c *Client) AddListener(event string, fn Listener, id ...string) string {
	return c.handlers.AddListener(event, fn, id...)
}

func (c *Client) RemoveListener(event, id string) {
	c.handlers.RemoveListener(event, id)
}

// Connect opens the connection. It returns at once when already connected,
// and joins the in-flight attempt when another caller is dialing. A failed
// dial is returned and not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if p := c.pending; p != nil {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var token string
	if c.session != nil {
		token = c.session.Token()
	}
	if token == "" {
		c.mu.Unlock()
		return ErrNoActiveSession
	}

	p := &attempt{done: make(chan struct{})}
	c.pending = p
	c.state = StateConnecting
	epoch := c.epoch
	c.mu.Unlock()

	p.err = c.dial(ctx, p, token, epoch)
	close(p.done)
	return p.err
}

func (c *Client) dial(ctx context.Context, p *attempt, token string, epoch uint64) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil && resp != nil {
		err = newHandshakeError(resp, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Disconnect may already have released the slot for a newer attempt.
	if c.pending == p {
		c.pending = nil
	}

	if err != nil {
		if c.epoch == epoch {
			c.state = StateDisconnected
		}
		c.logger.Error("WebSocket connection failed", "url", c.url, "error", err)
		return err
	}
	if c.epoch != epoch {
		conn.Close()
		return ErrClosed
	}

	c.conn = conn
	c.state = StateConnected
	c.logger.Info("WebSocket connected", "url", c.url)
	go c.readLoop(conn)
	return nil
}

// readLoop is the event loop of one connection: every frame it reads is
// dispatched to listeners on this goroutine.
func (c *Client) readLoop(conn *gorillaws.Conn) {
	var err error
	for {
		var frame []byte
		if _, frame, err = conn.ReadMessage(); err != nil {
			break
		}

		env, decodeErr := websocket.DecodeEnvelope(frame)
		if decodeErr != nil {
			c.logger.Warn("Dropping malformed frame", "error", decodeErr)
			continue
		}
		c.handlers.Dispatch(env.Event, env.Data)
	}

	c.onTransportClosed(conn, err)
}

func (c *Client) onTransportClosed(conn *gorillaws.Conn, cause error) {
	defer conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Disconnect already took this connection down.
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.logger.Info("WebSocket disconnected", "reason", cause)

	if c.session == nil || !c.session.IsAuthenticated() || c.reconnect != nil {
		return
	}

	epoch := c.epoch
	c.reconnect = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		stale := c.epoch != epoch
		c.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("Reconnect failed", "error", err)
		}
	})
}

// Disconnect ends the session: it cancels a scheduled reconnect, closes the
// connection and clears every listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.epoch++
	c.pending = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		msg := gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "")
		_ = conn.WriteControl(gorillaws.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		conn.Close()
	}
	c.handlers.Clear()
}

// Emit sends one event while connected and reports whether it was written.
func (c *Client) Emit(event string, data any) bool {
	frame, err := websocket.EncodeEnvelope(event, data)
	if err != nil {
		c.logger.Error("Failed to encode event", "event", event, "error", err)
		return false
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(gorillaws.TextMessage, frame); err != nil {
		c.logger.Warn("Failed to send event", "event", event, "error", err)
		return false
	}
	return true
}

// Subscriptions are dropped while disconnected. Callers re-subscribe after a
// reconnect.

func (c *Client) SubscribeToTask(taskID string) bool {
	return c.Emit(websocket.EventTaskSubscribe.String(), taskID)
}

func (c *Client) UnsubscribeFromTask(taskID string) bool {
	return c.Emit(websocket.EventTaskUnsubscribe.String(), taskID)
}

func (c *Client) SubscribeToEvent(eventID string) bool {
	return c.Emit(websocket.EventEventSubscribe.String(), eventID)
}

func (c *Client) UnsubscribeFromEvent(eventID string) bool {
	return c.Emit(websocket.EventEventUnsubscribe.String(), eventID)
}

// Ping asks the server for a pong event.
func (c *Client) Ping() bool {
	return c.Emit(websocket.EventPing.String(), nil)
}
