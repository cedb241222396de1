package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taskplanner/internal/auth"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// ConnState is the lifecycle state of one physical connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is the handle for one authenticated physical connection.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	identity    auth.Identity
	connectedAt time.Time

	// send is never closed; done signals shutdown to the write pump.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	detachOnce sync.Once
	state      atomic.Int32
	logger     *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	id := uuid.New().String()
	c := &Client{
		id:          id,
		hub:         hub,
		conn:        conn,
		identity:    identity,
		connectedAt: time.Now(),
		send:        make(chan []byte, hub.cfg.SendBufferSize),
		done:        make(chan struct{}),
		logger:      hub.logger.With("clientID", id, "userID", identity.ID),
	}
	c.state.Store(int32(StateActive))
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.identity.ID
}

func (c *Client) Identity() auth.Identity {
	return c.identity
}

func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Done is closed once the client starts closing.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close moves the client to Closing. Frames already queued are still written
// before the transport is closed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		c.logger.Debug("Client marked as closing")
	})
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// means the peer is not keeping up, so the connection is dropped.
func (c *Client) enqueue(frame []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("Send buffer full, closing client", "buffer", cap(c.send))
		c.Close()
		return ErrSendBufferFull
	}
}

// readPump owns all reads for the connection and detaches it from the hub
// when the transport reports a disconnect.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.hub.detach(c)
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", "error", err)
			} else {
				c.logger.Debug("WebSocket connection closed", "error", err)
			}
			return
		}

		env, err := DecodeEnvelope(frame)
		if err != nil {
			c.logger.Debug("Dropping malformed frame", "error", err)
			continue
		}
		c.hub.handleClientEvent(c, env)
	}
}

// writePump is the only writer on the connection. On shutdown it flushes
// whatever is still queued, then sends a close frame.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.state.Store(int32(StateClosed))
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Error writing frame", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Error sending ping", "error", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}
