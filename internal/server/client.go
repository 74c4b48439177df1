// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

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

// Client represents one WebSocket connection to the relay. It owns the
// read/write pump pair and the buffered send channel; protocol state lives
// on the attached broker Conn.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	link           *Conn
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance with the provided WebSocket
// connection, hub reference, and client address. The client's send channel
// is buffered to handle message queuing, and the client is attached to the
// currently active broker as an anonymous connection.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	c := &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
	c.link = currentBroker().NewConn(c, addr)
	return c
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Send queues a payload for delivery to this client. It reports false when
// the client is unregistered, closed, or its buffer is full; the relay
// never blocks on a slow peer.
func (c *Client) Send(payload []byte) bool {
	return c.hub.safeSend(c, payload)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Error("Failed to set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Error("Failed to set read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	fields := logrus.Fields{"addr": c.addr, "error": err}

	if errors.Is(err, websocket.ErrReadLimit) {
		logrus.WithFields(logrus.Fields{
			"addr":     c.addr,
			"max_size": c.maxMessageSize,
		}).Warn("Message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		logrus.WithFields(fields).Info("Client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		logrus.WithFields(fields).Info("Client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		logrus.WithFields(fields).Warn("Unexpected WebSocket error")
		return true
	}

	logrus.WithFields(fields).Warn("WebSocket read error")
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		logrus.WithFields(logrus.Fields{
			"addr":   c.addr,
			"burst":  c.rateLimit.Burst,
			"refill": c.rateLimit.RefillInterval,
		}).Warn("Rate limit exceeded; discarding message")
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.link.Disconnect(c.hub.ctx)
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				logrus.WithField("error", err).Warn("Error closing connection in readPump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.link.HandleFrame(c.hub.ctx, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			logrus.WithField("error", err).Warn("Error closing connection in writePump")
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Warn("Failed to set write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Warn("Error writing close message")
		}
	}
	return false
}

// writeTextMessage writes a single frame per WebSocket message. Frames are
// never coalesced: every queued payload is one JSON object and must arrive
// as its own message.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Warn("Error writing message")
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Warn("Failed to set write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logrus.WithFields(logrus.Fields{"addr": c.addr, "error": err}).Info("Error writing ping message")
		return false
	}
	return true
}
