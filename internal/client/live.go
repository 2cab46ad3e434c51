package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

var ErrLiveClosed = errors.New("live connection closed")

// Live is a persistent event channel to the dispatcher.
type Live interface {
	Send(event models.Event) error
	// Events is closed when the connection ends.
	Events() <-chan models.Event
	Close() error
}

// LiveConn is a Live over a gorilla websocket.
type LiveConn struct {
	conn   *websocket.Conn
	events chan models.Event
	mu     sync.Mutex
	closed bool
}

// DialLive opens the websocket at wsURL, e.g. "ws://localhost:8083/ws".
func DialLive(ctx context.Context, wsURL, token string) (*LiveConn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	l := &LiveConn{conn: conn, events: make(chan models.Event, 64)}
	go l.readLoop()
	return l, nil
}

func (l *LiveConn) readLoop() {
	defer close(l.events)
	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		var event models.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		l.events <- event
	}
}

func (l *LiveConn) Send(event models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLiveClosed
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return l.conn.WriteJSON(event)
}

func (l *LiveConn) Events() <-chan models.Event {
	return l.events
}

func (l *LiveConn) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return l.conn.Close()
}
