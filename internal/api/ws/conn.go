package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Conn is one client connection. All writes to the socket go through
// the send channel and writePump, keeping the single-writer rule.
type Conn struct {
	id   string
	hub  *Hub
	sock *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// close marks the connection dead and wakes the write pump. The send
// channel is never closed; emitters that lost the race against a drop
// see the closed flag instead. Safe to call more than once.
func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	_ = c.sock.Close()
}

// enqueue queues an already-marshaled frame. Frames for a closed
// connection are discarded; a full buffer marks the consumer as too
// slow and drops the connection.
func (c *Conn) enqueue(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.hub.logger.Warn("dropping slow websocket consumer",
			zap.String("conn_id", c.id))
		c.hub.drop(c)
	}
}

// emit marshals and queues an event for this connection.
func (c *Conn) emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.hub.logger.Error("marshal websocket payload",
			zap.String("event", event), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	if c.hub.metrics != nil {
		c.hub.metrics.RecordWSMessage("out", event)
	}
	c.enqueue(frame)
}

// readPump consumes frames until the connection dies, dispatching each
// to the hub.
func (c *Conn) readPump() {
	defer c.hub.drop(c)

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.hub.logger.Debug("malformed websocket frame",
				zap.String("conn_id", c.id))
			continue
		}
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWSMessage("in", env.Event)
		}
		c.hub.dispatch(c, env)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
