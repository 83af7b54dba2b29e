package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/chatrelay/internal/broadcast"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/registry"
)

// Client is one WebSocket connection. It is the handle the registry stores:
// the broadcast engine writes to it through Send, and its own handling loop
// reads from it in serve.
type Client struct {
	conn    *websocket.Conn
	engine  *broadcast.Engine
	metrics *metrics.RelayMetrics
	logger  *zap.Logger
	limiter *rate.Limiter
	cfg     Config
	addr    string

	// loopLogger carries the client ID and is only used by serve and keepAlive.
	loopLogger *zap.Logger

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func (s *Server) newClient(conn *websocket.Conn, addr string) *Client {
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	return &Client{
		conn:    conn,
		engine:  s.engine,
		metrics: s.metrics,
		logger:  s.logger.With(zap.String("addr", addr)),
		limiter: newRateLimiter(s.cfg.RateLimit),
		cfg:     s.cfg,
		addr:    addr,
		done:    make(chan struct{}),
	}
}

// Send writes one text frame. A failed write leaves the socket unusable, so
// it is closed and the read side of serve sees the failure.
func (c *Client) Send(payload []byte) error {
	if c.closed.Load() {
		return registry.ErrHandleClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		c.closeSocket()
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closeSocket()
		return err
	}
	return nil
}

// Close sends a going-away close frame and closes the socket. It is safe to
// call more than once and from any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing connection")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); werr != nil && !isExpectedCloseError(werr) {
			c.logger.Debug("Error writing close frame", zap.Error(werr))
		}
		if cerr := c.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

func (c *Client) closeSocket() {
	c.closed.Store(true)
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error closing connection", zap.Error(err))
	}
}

// serve drives the connection from registration to disconnect. It returns
// once the socket can no longer be read.
func (c *Client) serve() {
	c.setupReadConnection()

	clientID := c.engine.OnConnect(c)
	c.loopLogger = c.logger.With(zap.String("client_id", clientID))

	go c.keepAlive()

	defer func() {
		close(c.done)
		c.engine.OnDisconnect(c, clientID)
		if err := c.Close(); err != nil {
			c.loopLogger.Debug("Error closing connection after disconnect", zap.Error(err))
		}
	}()

	for {
		messageType, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.loopLogger.Debug("Ignoring non-text frame", zap.Int("message_type", messageType))
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(clientID, rawMessage)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Warn("Error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Warn("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError reports why the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.loopLogger.Warn("Message exceeded maximum size", zap.Int64("max_bytes", c.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.loopLogger.Info("Client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.loopLogger.Info("Client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err):
		c.loopLogger.Warn("Unexpected WebSocket close", zap.Error(err))
	default:
		c.loopLogger.Warn("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit reports whether the next message may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter.Allow() {
		return true
	}
	c.metrics.RateLimited.Inc()
	c.loopLogger.Warn("Rate limit exceeded; discarding message",
		zap.Int("burst", c.cfg.RateLimit.Burst),
		zap.Duration("interval", c.cfg.RateLimit.RefillInterval))
	return false
}

// processMessage hands a raw frame to the engine. Malformed payloads are
// logged and skipped; the connection stays open.
func (c *Client) processMessage(clientID string, rawMessage []byte) {
	if err := c.engine.OnMessage(clientID, rawMessage); err != nil {
		if errors.Is(err, broadcast.ErrMalformedPayload) {
			c.loopLogger.Warn("Invalid message", zap.Error(err))
			return
		}
		c.loopLogger.Error("Error processing message", zap.Error(err))
	}
}

// keepAlive pings the peer until the handling loop ends. WriteControl may
// run concurrently with Send.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !isExpectedCloseError(err) {
					c.loopLogger.Warn("Error writing ping message", zap.Error(err))
				}
				c.closeSocket()
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
