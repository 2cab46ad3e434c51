package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"messaging-service/internal/errs"
	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
)

// Sender stores and fans out one message. *messaging.Service implements it.
type Sender interface {
	Send(ctx context.Context, in messaging.SendInput) (models.Message, error)
}

// Dispatcher routes inbound live-channel events. Each connection's events
// arrive one at a time from its read loop.
type Dispatcher struct {
	hub    *Hub
	sender Sender
	logger *slog.Logger
}

func NewDispatcher(hub *Hub, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{hub: hub, sender: sender, logger: logger}
}

// Dispatch handles one raw frame from c.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		d.fail(c, errs.InvalidArgument("event", "malformed event"))
		return
	}

	switch event.Type {
	case models.EventAnnounce:
		d.announce(c, event)
	case models.EventSend:
		d.send(ctx, c, event)
	default:
		d.fail(c, errs.InvalidArgument("type", "unknown event type"))
	}
}

func (d *Dispatcher) announce(c *Client, event models.Event) {
	var payload models.AnnouncePayload
	if err := event.Decode(&payload); err != nil {
		d.fail(c, err)
		return
	}
	if payload.UserID == "" {
		d.fail(c, errs.InvalidArgument("userId", "user id is required"))
		return
	}
	if payload.UserID != c.identity.UserID {
		d.logger.Warn("announce does not match token", "conn_id", c.ID(), "user_id", c.identity.UserID, "announced", payload.UserID)
		d.fail(c, errs.PermissionDenied("cannot announce as another user"))
		return
	}
	d.hub.Announce(c, payload.UserID)
	d.logger.Info("user online", "user_id", payload.UserID, "conn_id", c.ID())
}

func (d *Dispatcher) send(ctx context.Context, c *Client, event models.Event) {
	var payload models.SendPayload
	if err := event.Decode(&payload); err != nil {
		d.nack(c, "", err)
		return
	}

	userID, ok := c.AnnouncedUser()
	if !ok {
		d.nack(c, payload.ClientTempID, errs.Unauthenticated)
		return
	}
	if payload.SenderID != "" && payload.SenderID != userID {
		d.nack(c, payload.ClientTempID, errs.PermissionDenied("cannot send as another user"))
		return
	}

	msg, err := d.sender.Send(ctx, messaging.SendInput{
		SenderID:       userID,
		ReceiverID:     payload.ReceiverID,
		ConversationID: payload.ConversationID,
		Body:           payload.Message,
		Channel:        "ws",
		OriginConnID:   c.ID(),
	})
	if err != nil {
		d.nack(c, payload.ClientTempID, err)
		return
	}

	ack, err := models.NewEvent(models.EventMessageAck, models.MessageAck{ClientTempID: payload.ClientTempID, Message: msg})
	if err != nil {
		d.logger.Error("failed to encode ack", "message_id", msg.ID, "error", err)
		return
	}
	d.hub.deliver(c, ack)
}

func (d *Dispatcher) nack(c *Client, clientTempID string, err error) {
	event, encErr := models.NewEvent(models.EventMessageNack, models.MessageNack{
		ClientTempID: clientTempID,
		Error:        errs.Public(err),
	})
	if encErr != nil {
		return
	}
	d.hub.deliver(c, event)
}

func (d *Dispatcher) fail(c *Client, err error) {
	event, encErr := models.NewEvent(models.EventError, models.ErrorPayload{Error: errs.Public(err)})
	if encErr != nil {
		return
	}
	d.hub.deliver(c, event)
}
