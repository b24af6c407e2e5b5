package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// WSMessage is the inbound wire frame.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client represents one WebSocket connection. playerID stays empty until
// the socket authenticates; roomID is maintained by the Hub under its lock.
type Client struct {
	conn        *websocket.Conn
	server      *Server
	playerID    string
	roomID      string
	reconnected bool
	send        chan []byte
}

// writePump writes frames and pings the socket at the heartbeat interval.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed, connection replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] Ping error for player %s: %v", c.playerID, err)
				return
			}
		}
	}
}

// readPump reads frames until the socket dies, then hands the client to the
// unregister path.
func (c *Client) readPump() {
	defer func() {
		c.server.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(c.server.connectionTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.server.connectionTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Unexpected close for player %s: %v", c.playerID, err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(c.server.connectionTimeout))
		c.touch()

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message frame")
			continue
		}
		c.server.handleMessage(c, msg)
	}
}

// touch updates the bound player's last-activity timestamp.
func (c *Client) touch() {
	if c.playerID == "" {
		return
	}
	if p := c.server.playerByID(c.playerID); p != nil {
		p.Touch()
	}
}

// sendJSON queues an event frame on this socket only.
func (c *Client) sendJSON(event string, data map[string]interface{}) {
	frame := wsMessage(event, data)
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("[WS] Dropped %s for player %s (buffer full)", event, c.playerID)
	}
}

// sendError sends a generic error frame.
func (c *Client) sendError(message string) {
	c.sendJSON("error", map[string]interface{}{"message": message})
}
