package signal

import (
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

	// Maximum message size allowed from peer. SDP payloads fit well
	// within this; load-file messages carry a source reference, not bytes.
	maxMessageSize = 64 * 1024
)

// Client wraps a single push-binding websocket connection.
type Client struct {
	conn   *websocket.Conn
	room   string
	send   chan []byte
	server *Server
}

// readPump forwards every inbound frame verbatim to the other room
// member. The relay never parses the payload.
//
// readPump runs in a per-connection goroutine; all reads happen here.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket read: %v", err)
			}
			break
		}

		c.server.mu.RLock()
		room, exists := c.server.rooms[c.room]
		c.server.mu.RUnlock()
		if !exists {
			break
		}
		room.forward(c, data)
	}
}

// writePump drains the client's send channel onto the websocket. All
// writes to the connection happen here.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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
				log.Warnf("websocket write: %v", err)
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
