package stream

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 1024
)

// client is a single websocket peer.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *client {
	return &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), remote: remote}
}

func (c *client) writePump() {
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

// readPump drains the connection so control frames are processed. The only
// client message understood is {"ping": <n>}, answered with a pong.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil || req.Ping == 0 {
			continue
		}
		pong, _ := json.Marshal(map[string]any{
			"type":      "pong",
			"ping":      req.Ping,
			"server_ts": time.Now().UnixMilli(),
		})
		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.hub.deliver(c, pong)
		}
		c.hub.mu.RUnlock()
	}
}
