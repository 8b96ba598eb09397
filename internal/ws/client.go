package ws

import (
	"encoding/json"
	"sync"
	"time"

	"pocketsync/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

type Client struct {
	OwnerID string
	Conn    *websocket.Conn
	Send    chan []byte

	Hub       *Hub
	Done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

func NewClient(ownerID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		OwnerID: ownerID,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Hub:     hub,
		Done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Run registers the client, greets it with a ready message and the current
// connectivity state, then blocks until the connection ends.
func (c *Client) Run() {
	go c.writePump()

	c.Hub.Register(c)
	c.sendJSON(map[string]string{"type": MsgReady})
	if c.Hub.reporter != nil {
		c.sendJSON(ConnectivityMessage{Type: MsgConnectivity, Online: c.Hub.reporter.Online()})
	}

	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws read error", "owner_id", c.OwnerID, "error", err)
			}
			return
		}
		c.Hub.handleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("ws write error", "owner_id", c.OwnerID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue never blocks; a client too slow to drain its buffer misses messages.
func (c *Client) enqueue(b []byte) {
	select {
	case <-c.quit:
	case c.Send <- b:
	default:
		logger.Warn("ws send buffer full, dropping message", "owner_id", c.OwnerID)
	}
}

func (c *Client) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(b)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.quit) })
}
