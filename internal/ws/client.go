package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy enforced by the CORS layer upstream
	},
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{} // closed by the hub when the client is dropped
	filter string
	id     string
}

// wants reports whether an event passes the client's preview filter.
// Hub-level events (no preview ID) always pass.
func (c *client) wants(ev Event) bool {
	return c.filter == "" || ev.PreviewID == "" || c.filter == ev.PreviewID
}

// HandleConnection upgrades the request and attaches the client to the
// hub. The optional ?preview= query narrows the stream to one preview.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
		filter: c.Query("preview"),
		id:     uuid.NewString(),
	}

	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}

	go cl.writePump()
	cl.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if msg.Type == "ping" {
			// Answer only the asking client, on its own send queue.
			pong, err := marshalEvent(Event{Type: "pong", Timestamp: time.Now().Unix()})
			if err != nil {
				continue
			}
			select {
			case c.send <- pong:
			case <-c.done:
				return
			default:
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	// welcome frame, sent before any broadcast traffic
	welcome, _ := marshalEvent(Event{
		Type:      "system",
		Timestamp: time.Now().Unix(),
		Data: map[string]any{
			"message":   "connected to preview event stream",
			"client_id": c.id,
		},
	})
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
