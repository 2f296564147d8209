package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single write to the peer.
	writeWait = 10 * time.Second

	// maxMessageSize bounds inbound frames.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outbound queue depth.
	sendBufferSize = 256
)

// client is a single websocket connection tracked by the hub.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	authenticated bool
	userID        string
	subscriptions []SubscriptionFilter
}

// readPump consumes frames from the peer until the connection drops.
// It runs in its own goroutine; one per connection.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(mustMarshal(errorMessage{Type: TypeError, Message: "invalid message format"}))
			continue
		}

		switch msg.Type {
		case TypePing:
			c.enqueue(mustMarshal(pongMessage{Type: TypePong}))
		case TypeSubscribe:
			if !c.authenticated {
				c.enqueue(mustMarshal(errorMessage{Type: TypeError, Message: "authentication required for subscriptions"}))
				continue
			}
			c.subscriptions = msg.Subscriptions
			c.enqueue(mustMarshal(subscribedMessage{Type: TypeSubscribed, Subscriptions: msg.Subscriptions}))
		default:
			c.enqueue(mustMarshal(errorMessage{Type: TypeError, Message: "unknown message type"}))
		}
	}
}

// enqueue pushes a frame onto the client's send queue. Frames are dropped
// when the queue is full rather than blocking the read loop.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket send buffer full, dropping frame")
	}
}

// writePump drains the send queue to the peer and keeps the connection
// alive with periodic pings. One per connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
