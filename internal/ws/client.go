package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Per-connection outbound buffer. A slow consumer that fills it loses
	// frames rather than stalling the hub.
	sendBufferSize = 256
)

// Client is one authenticated websocket connection bound to a user. It is
// the explicit per-connection session object: nothing about a session
// survives in handler state across reconnects.
type Client struct {
	gateway *Gateway
	logger  *slog.Logger
	conn    *websocket.Conn
	userID  uint64
	send    chan []byte

	// room memberships, guarded by the hub lock
	rooms map[uint64]struct{}

	// session context, cancelled when the connection ends
	ctx    context.Context
	cancel context.CancelFunc
}

// trySend queues a frame without blocking. Callers hold the hub lock, so a
// blocked socket must never stall delivery to other members.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump relays inbound frames to the gateway dispatcher. One goroutine
// per connection.
func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read error", "user_id", c.userID, "err", err)
			}
			return
		}
		c.gateway.dispatch(c, msg)
	}
}

// writePump writes queued frames and pings. One goroutine per connection;
// the sole writer on the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
