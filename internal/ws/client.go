package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
)

// ConnState tracks a connection through its lifetime.
type ConnState int

const (
	StateAnonymous ConnState = iota
	StateAnnounced
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAnnounced:
		return "announced"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client is one live websocket connection. Frames queued with enqueue are
// written by the write pump in order.
type Client struct {
	info     ConnInfo
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}

	mu        sync.Mutex
	state     ConnState
	announced string
	closeOnce sync.Once
}

func newClient(info ConnInfo, identity auth.Identity, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		info:     info,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// ID implements presence.Conn.
func (c *Client) ID() string {
	return c.info.ConnID
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AnnouncedUser returns the user id bound by announce, if any.
func (c *Client) AnnouncedUser() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.announced, c.state == StateAnnounced
}

func (c *Client) markAnnounced(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return false
	}
	c.state = StateAnnounced
	c.announced = userID
	return true
}

// enqueue queues an event without blocking. It reports false when the
// client is gone or its queue is full.
func (c *Client) enqueue(event models.Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump hands each inbound frame to handle, one at a time, until the
// connection fails. The returned error is the read failure.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
