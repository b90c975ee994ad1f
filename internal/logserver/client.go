package logserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msto63/kflogs/internal/logging"
	"github.com/msto63/kflogs/internal/stream"
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

	// Frames buffered per client before it counts as slow.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection of the log server
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logging.Logger
}

func newClient(id string, hub *Hub, conn *websocket.Conn, logger *logging.Logger) *Client {
	return &Client{
		ID:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client", id),
	}
}

// readPump reads subscribe frames until the peer goes away. The first
// logs:subscribe calls onSubscribe, which must not block; later ones are
// ignored. ctx passed to onSubscribe ends with the connection.
func (c *Client) readPump(onSubscribe func(ctx context.Context, c *Client, frame stream.SubscribeFrame)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	subscribed := false
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var frame stream.SubscribeFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Warn("ignoring malformed frame", "error", err)
			continue
		}
		if frame.Event != stream.EventSubscribe {
			c.logger.Debug("ignoring frame", "event", frame.Event)
			continue
		}
		if subscribed {
			c.logger.Debug("duplicate subscribe ignored", "job_id", frame.Data.JobID)
			continue
		}
		if frame.Data.JobID <= 0 {
			c.logger.Warn("subscribe without job id ignored")
			continue
		}

		subscribed = true
		c.logger.Info("client subscribed", "job_id", frame.Data.JobID,
			"resource", frame.ResourceName, "namespace", frame.ResourceNamespace)
		onSubscribe(ctx, c, frame)
	}
}

// writePump writes queued frames and pings. A closed send channel ends the
// connection with a normal close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
