package ws

import (
	"context"
	"log/slog"
	"sync"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
)

const wsRoutingKey = "ws_events.messaging"

const (
	eventConnect    = "ws_connect"
	eventDisconnect = "ws_disconnect"
	eventError      = "ws_error"
)

// Hub owns the live connections and the presence registry, and delivers
// stored messages to whoever is online.
type Hub struct {
	clients  map[string]*Client
	presence presence.Registry
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewHub creates an empty hub backed by registry.
func NewHub(registry presence.Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		clients:  make(map[string]*Client),
		presence: registry,
		logger:   logger,
	}
}

// Register adds a freshly upgraded connection and gives it the current
// presence snapshot.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	h.mu.Unlock()

	observability.WSConnectionOpened()
	h.publish(ctx, c.info, eventConnect, "")
	h.deliver(c, h.snapshot())
}

// Unregister drops a connection. If it was the live connection of an
// announced user, everyone gets a new snapshot.
func (h *Hub) Unregister(ctx context.Context, c *Client, reason string) {
	h.mu.Lock()
	_, known := h.clients[c.ID()]
	delete(h.clients, c.ID())
	h.mu.Unlock()
	c.close()
	if !known {
		return
	}

	if userID, removed := h.presence.Remove(c); removed {
		h.logger.Info("user offline", "user_id", userID, "conn_id", c.ID())
		h.BroadcastPresence()
	}
	observability.WSConnectionClosed()
	h.publish(ctx, c.info, eventDisconnect, reason)
}

// Announce binds userID to c. A previous connection of the same user stays
// open but stops receiving that user's deliveries.
func (h *Hub) Announce(c *Client, userID string) {
	if !c.markAnnounced(userID) {
		return
	}
	if previous := h.presence.Announce(userID, c); previous != nil {
		h.logger.Info("connection replaced", "user_id", userID, "conn_id", c.ID(), "previous_conn_id", previous.ID())
	}
	h.BroadcastPresence()
}

// Online lists the users with a live connection.
func (h *Hub) Online() []string {
	return h.presence.Online()
}

// BroadcastPresence sends the full online set to every connection,
// announced or not.
func (h *Hub) BroadcastPresence() {
	event := h.snapshot()
	for _, c := range h.all() {
		h.deliver(c, event)
	}
}

// SendTo delivers event to the live connection of userID and reports
// whether there was one.
func (h *Hub) SendTo(userID string, event models.Event) bool {
	c, ok := h.clientOf(userID)
	if !ok {
		return false
	}
	return h.deliver(c, event)
}

// MessageCreated pushes a stored message to the receiver, with a toast.
// The sender's copy goes to the originating connection and to the
// sender's live connection when that is a different one.
func (h *Hub) MessageCreated(msg models.Message, originConnID string) {
	delivered, err := models.NewEvent(models.EventMessageDelivered, msg)
	if err != nil {
		h.logger.Error("failed to encode message", "message_id", msg.ID, "error", err)
		return
	}

	if h.SendTo(msg.ReceiverID, delivered) {
		name := msg.SenderID
		if msg.Sender != nil && msg.Sender.DisplayName != "" {
			name = msg.Sender.DisplayName
		}
		if toast, err := models.NewEvent(models.EventNotification, models.Notification{
			SenderDisplayName: name,
			Message:           msg.Body,
		}); err == nil {
			h.SendTo(msg.ReceiverID, toast)
		}
	}

	echoed := ""
	if origin, ok := h.client(originConnID); ok {
		h.deliver(origin, delivered)
		echoed = origin.ID()
	}
	if live, ok := h.clientOf(msg.SenderID); ok && live.ID() != echoed {
		h.deliver(live, delivered)
	}
}

func (h *Hub) client(connID string) (*Client, bool) {
	if connID == "" {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

func (h *Hub) clientOf(userID string) (*Client, bool) {
	conn, ok := h.presence.Lookup(userID)
	if !ok {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[conn.ID()]
	return c, ok
}

func (h *Hub) all() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) snapshot() models.Event {
	event, _ := models.NewEvent(models.EventPresenceSnapshot, models.PresenceSnapshot{UserIDs: h.presence.Online()})
	return event
}

// deliver queues event on c. A client whose queue is full is cut off; its
// read loop then unregisters it.
func (h *Hub) deliver(c *Client, event models.Event) bool {
	if c.enqueue(event) {
		return true
	}
	if c.State() != StateDisconnected {
		h.logger.Warn("dropping slow websocket client", "conn_id", c.ID(), "user_id", c.info.UserID)
		h.publish(context.Background(), c.info, eventError, "send queue full")
		c.close()
	}
	return false
}

func (h *Hub) publish(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, wsRoutingKey, "ws_events", event,
		info.lifecycle(event, reason),
		observability.Correlation(ctx, info.RequestID, info.TraceID))
}
