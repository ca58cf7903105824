// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrConnClosed is returned by Send once the client has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned by Send when the peer is not draining its queue.
	ErrSendQueueFull = errors.New("send queue full")
)

// State is the lifecycle stage of a client connection.
type State int32

// Client lifecycle: Connecting until the hub starts its pumps, Open while
// messages flow, Closed for good.
const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client represents one WebSocket connection joined to a room. It implements
// chat.Conn: Send only queues, and the write pump drains the queue.
type Client struct {
	id   string
	conn *websocket.Conn
	user string
	room string
	addr string

	mu        sync.RWMutex
	send      chan []byte
	state     atomic.Int32
	closeOnce sync.Once

	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	logger         *zap.Logger
}

// NewClient wraps conn for user in room. conn may be nil in tests that never
// start the pumps.
func NewClient(conn *websocket.Conn, cfg *Config, user, room, addr string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		user:           user,
		room:           room,
		addr:           addr,
		send:           make(chan []byte, cfg.SendQueueSize),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		logger: logger.With(
			zap.String("conn", id),
			zap.String("user", user),
			zap.String("room", room),
			zap.String("addr", addr)),
	}
}

// ID returns the connection's unique identity.
func (c *Client) ID() string { return c.id }

// User returns the user name the client connected with.
func (c *Client) User() string { return c.user }

// Room returns the room the client connected to.
func (c *Client) Room() string { return c.room }

// State returns the current lifecycle stage.
func (c *Client) State() State { return State(c.state.Load()) }

// IsOpen reports whether the client still accepts messages.
func (c *Client) IsOpen() bool { return c.State() == StateOpen }

// GetSendChan returns the client's outbound queue for reading.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// open moves a connecting client to Open. It fails if the client was closed first.
func (c *Client) open() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Send queues payload without blocking. A full queue means the peer is too
// slow; the client is closed rather than stalling the sender.
func (c *Client) Send(payload []byte) error {
	err := c.enqueue(payload)
	if errors.Is(err, ErrSendQueueFull) {
		c.logger.Warn("send queue full; closing slow client", zap.Int("queued", len(c.send)))
		_ = c.Close()
	}
	return err
}

func (c *Client) enqueue(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.State() != StateOpen {
		return ErrConnClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close marks the client closed and closes its queue, which makes the write
// pump send a close frame and drop the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state.Store(int32(StateClosed))
		close(c.send)
		c.mu.Unlock()
	})
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("set read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type.
// Every read error ends the read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("message exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

// checkRateLimit reports whether the next message may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Info("rate limit exceeded; discarding message",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

func (c *Client) readPump(handler RoomHandler, onExit func()) {
	defer func() {
		_ = c.Close()
		handler.OnClose(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("close connection in readPump", zap.Error(err))
		}
		onExit()
	}()

	c.setupReadConnection()
	handler.OnOpen(c, c.User(), c.Room())

	for {
		msgType, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		// Malformed input is logged by the handler and otherwise ignored.
		_ = handler.OnMessage(c, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("close connection in writePump", zap.Error(err))
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline", zap.Error(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("write close message", zap.Error(err))
	}
	return false
}

// writeTextMessage writes one payload as its own frame; clients parse each
// frame as a single JSON message.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write message", zap.Error(err))
		}
		_ = c.Close()
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("write ping", zap.Error(err))
		_ = c.Close()
		return false
	}
	return true
}
