package presence

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

func (c *Conn) readPump(m *Manager) {
	defer func() {
		m.closed(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("presence read failed: " + err.Error())
			}
			return
		}
		// Any inbound traffic proves the peer is alive.
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		m.handle(c, ev)
	}
}

func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One event per frame so clients can decode each frame as JSON.
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues ev without blocking. It reports false when the buffer is full.
func (c *Conn) trySend(ev Event) bool {
	msg, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) sendError(message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	c.trySend(Event{Type: EventError, Payload: payload})
}

// closeTransport closes the socket; the read loop then unregisters c.
func (c *Conn) closeTransport() {
	if c.ws != nil {
		c.ws.Close()
	}
}

// OriginAllowed reports whether origin is in the allow-list. Requests without
// an Origin header come from non-browser clients and are allowed.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
