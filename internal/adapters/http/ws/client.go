// Package ws serves match rooms to spectators over WebSocket.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/crease/internal/adapters/hub"
	"github.com/okian/crease/internal/domain/types"
	"github.com/okian/crease/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one spectator socket. It implements hub.Conn.
type Client struct {
	id   string
	conn *websocket.Conn
	log  logger.Logger

	mu     sync.Mutex
	send   chan types.Envelope
	closed bool
}

func newClient(id string, conn *websocket.Conn, buffer int, log logger.Logger) *Client {
	return &Client{id: id, conn: conn, send: make(chan types.Envelope, buffer), log: log}
}

// ID implements hub.Conn.
func (c *Client) ID() string { return c.id }

// Send queues env without blocking.
func (c *Client) Send(env types.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return hub.ErrClosed
	}
	select {
	case c.send <- env:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

// Close stops the write pump after it flushes queued envelopes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// readPump consumes control frames until the peer goes away. Spectators
// never send data the server acts on.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn(ctx, "unexpected close", logger.String("conn_id", c.id), logger.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug(ctx, "write failed", logger.String("conn_id", c.id), logger.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
