// Package client holds the session controller a user-facing app drives:
// it keeps the conversation list, the open thread and presence in sync
// with the server over REST and the live channel.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

const tempIDPrefix = "temp-"

var ErrNoActiveThread = errors.New("no conversation is open")

// MessageStatus tracks a thread message from optimistic echo to the
// server record.
type MessageStatus int

const (
	StatusConfirmed MessageStatus = iota
	StatusPending
	StatusUnconfirmed
)

type ThreadMessage struct {
	models.Message
	Status MessageStatus
}

type Item struct {
	models.ConversationView
	Pinned bool
}

// State is a snapshot of what the user sees.
type State struct {
	Conversations []Item
	View          models.View
	Active        *models.Conversation
	ActivePeer    string
	Messages      []ThreadMessage
	Draft         string
	Online        []string
}

type Config struct {
	UserID string
	API    API
	// Dial opens the live channel. Nil runs the controller on REST only.
	Dial           func(ctx context.Context) (Live, error)
	Pins           PinStore
	AckTimeout     time.Duration
	OnNotification func(models.Notification)
	// OnChange is called after every state change, outside the lock.
	OnChange func()
	Logger   *slog.Logger
}

type sendResult struct {
	msg models.Message
	err error
}

// Controller is safe for concurrent use.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	live       Live
	items      []Item
	view       models.View
	viewSeq    int
	active     *models.Conversation
	activePeer string
	threadSeq  int
	messages   []ThreadMessage
	draft      string
	online     map[string]bool
	pins       map[string]bool
	acks       map[string]chan sendResult
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		view:   models.ViewInbox,
		online: map[string]bool{},
		pins:   map[string]bool{},
		acks:   map[string]chan sendResult{},
	}
}

// Start loads pins and the inbox, then opens the live channel and
// announces the user. A live channel that cannot be opened leaves the
// controller on REST.
func (c *Controller) Start(ctx context.Context) error {
	if c.cfg.Pins != nil {
		pins, err := c.cfg.Pins.Load()
		if err != nil {
			c.logger.Warn("failed to load pins", "error", err)
		} else {
			c.mu.Lock()
			c.pins = pins
			c.mu.Unlock()
		}
	}

	if err := c.ChangeView(ctx, models.ViewInbox); err != nil {
		return err
	}

	if c.cfg.Dial == nil {
		return nil
	}
	live, err := c.cfg.Dial(ctx)
	if err != nil {
		c.logger.Warn("live channel unavailable, using REST only", "error", err)
		return nil
	}
	announce, err := models.NewEvent(models.EventAnnounce, models.AnnouncePayload{UserID: c.cfg.UserID})
	if err != nil {
		return err
	}
	if err := live.Send(announce); err != nil {
		c.logger.Warn("announce failed, using REST only", "error", err)
		_ = live.Close()
		return nil
	}

	c.mu.Lock()
	c.live = live
	c.mu.Unlock()
	go c.listen(ctx, live)
	return nil
}

// Close ends the live channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	live := c.live
	c.live = nil
	c.mu.Unlock()
	if live == nil {
		return nil
	}
	return live.Close()
}

func (c *Controller) listen(ctx context.Context, live Live) {
	for event := range live.Events() {
		c.HandleEvent(ctx, event)
	}

	c.mu.Lock()
	if c.live == live {
		c.live = nil
	}
	waiting := c.acks
	c.acks = map[string]chan sendResult{}
	c.mu.Unlock()

	for _, ch := range waiting {
		ch <- sendResult{err: errs.Unavailable("live channel closed", nil)}
	}
	c.logger.Info("live channel closed")
	c.changed()
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Conversations: append([]Item(nil), c.items...),
		View:          c.view,
		ActivePeer:    c.activePeer,
		Messages:      append([]ThreadMessage(nil), c.messages...),
		Draft:         c.draft,
	}
	if c.active != nil {
		active := *c.active
		s.Active = &active
	}
	for id := range c.online {
		s.Online = append(s.Online, id)
	}
	sort.Strings(s.Online)
	return s
}

func (c *Controller) SetDraft(draft string) {
	c.mu.Lock()
	c.draft = draft
	c.mu.Unlock()
}

func (c *Controller) IsOnline(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}

// ChangeView switches between inbox and archive and reloads the list.
// A response that arrives after a newer ChangeView is dropped.
func (c *Controller) ChangeView(ctx context.Context, view models.View) error {
	c.mu.Lock()
	c.view = view
	c.viewSeq++
	seq := c.viewSeq
	c.mu.Unlock()

	list, err := c.cfg.API.ListConversations(ctx, view)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if seq != c.viewSeq {
		c.mu.Unlock()
		return nil
	}
	c.items = make([]Item, 0, len(list))
	for _, conv := range list {
		c.items = append(c.items, Item{ConversationView: conv, Pinned: c.pins[conv.ID]})
	}
	c.sortLocked()
	c.mu.Unlock()
	c.changed()
	return nil
}

// OpenThread loads the conversation with peerID and marks it read. If the
// user opens another thread before the response arrives, the response is
// dropped.
func (c *Controller) OpenThread(ctx context.Context, peerID string) error {
	c.mu.Lock()
	c.activePeer = peerID
	c.threadSeq++
	seq := c.threadSeq
	c.mu.Unlock()

	thread, err := c.cfg.API.OpenThread(ctx, peerID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if seq != c.threadSeq {
		c.mu.Unlock()
		return nil
	}
	conv := thread.Conversation
	c.active = &conv
	c.messages = make([]ThreadMessage, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		c.messages = append(c.messages, ThreadMessage{Message: msg})
	}
	if i := c.indexLocked(conv.ID); i >= 0 {
		c.items[i].UnreadCount = 0
	} else if c.view == models.ViewInbox {
		item := Item{ConversationView: models.ConversationView{Conversation: conv}, Pinned: c.pins[conv.ID]}
		if n := len(thread.Messages); n > 0 {
			last := thread.Messages[n-1]
			item.LastMessage = &last
		}
		c.items = append(c.items, item)
		c.sortLocked()
	}
	c.mu.Unlock()
	c.changed()

	if err := c.cfg.API.MarkRead(ctx, conv.ID); err != nil {
		c.logger.Warn("failed to mark conversation read", "conversation_id", conv.ID, "error", err)
	}
	return nil
}

// Send sends the draft to the open thread. The message shows up at once
// under a temporary id and is swapped for the server record when the live
// channel acks it. Without an ack in time the REST route is used instead.
// If that fails too, the message stays in the thread as unconfirmed.
func (c *Controller) Send(ctx context.Context) (models.Message, error) {
	c.mu.Lock()
	body := strings.TrimSpace(c.draft)
	if body == "" {
		c.mu.Unlock()
		return models.Message{}, errs.InvalidArgument("message", "message is required")
	}
	if c.active == nil {
		c.mu.Unlock()
		return models.Message{}, ErrNoActiveThread
	}
	convID := c.active.ID
	peer, _ := c.active.Peer(c.cfg.UserID)

	tempID := tempIDPrefix + gonanoid.Must()
	c.messages = append(c.messages, ThreadMessage{
		Message: models.Message{
			ID:             tempID,
			ConversationID: convID,
			SenderID:       c.cfg.UserID,
			ReceiverID:     peer.ID,
			Body:           body,
			CreatedAt:      time.Now(),
		},
		Status: StatusPending,
	})
	c.draft = ""
	live := c.live
	var ack chan sendResult
	if live != nil {
		ack = make(chan sendResult, 1)
		c.acks[tempID] = ack
	}
	c.mu.Unlock()
	c.changed()

	if live != nil {
		msg, err := c.sendLive(ctx, live, ack, models.SendPayload{
			SenderID:       c.cfg.UserID,
			ReceiverID:     peer.ID,
			Message:        body,
			ConversationID: convID,
			ClientTempID:   tempID,
		})
		if err == nil {
			c.confirm(tempID, msg)
			return msg, nil
		}
		c.logger.Info("live send not acknowledged, falling back to REST", "client_temp_id", tempID, "error", err)
	}

	msg, err := c.cfg.API.Send(ctx, peer.ID, convID, body)
	if err != nil {
		c.markUnconfirmed(tempID)
		return models.Message{}, err
	}
	c.confirm(tempID, msg)
	return msg, nil
}

func (c *Controller) sendLive(ctx context.Context, live Live, ack chan sendResult, payload models.SendPayload) (models.Message, error) {
	defer func() {
		c.mu.Lock()
		delete(c.acks, payload.ClientTempID)
		c.mu.Unlock()
	}()

	event, err := models.NewEvent(models.EventSend, payload)
	if err != nil {
		return models.Message{}, err
	}
	if err := live.Send(event); err != nil {
		return models.Message{}, err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case res := <-ack:
		return res.msg, res.err
	case <-timer.C:
		return models.Message{}, errs.Unavailable("no acknowledgement from server", nil)
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// confirm swaps the temporary message for the server record. If the
// delivered echo already did, the temporary copy is just dropped.
func (c *Controller) confirm(tempID string, msg models.Message) {
	c.mu.Lock()
	tempIdx, confirmedIdx := -1, -1
	for i, m := range c.messages {
		switch m.ID {
		case tempID:
			tempIdx = i
		case msg.ID:
			confirmedIdx = i
		}
	}
	switch {
	case tempIdx >= 0 && confirmedIdx >= 0:
		c.messages = append(c.messages[:tempIdx], c.messages[tempIdx+1:]...)
	case tempIdx >= 0:
		c.messages[tempIdx] = ThreadMessage{Message: msg}
	}
	c.previewLocked(msg)
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) markUnconfirmed(tempID string) {
	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == tempID {
			c.messages[i].Status = StatusUnconfirmed
		}
	}
	c.mu.Unlock()
	c.changed()
}

// HandleEvent applies one event from the live channel.
func (c *Controller) HandleEvent(ctx context.Context, event models.Event) {
	switch event.Type {
	case models.EventPresenceSnapshot:
		var snap models.PresenceSnapshot
		if err := event.Decode(&snap); err != nil {
			return
		}
		c.mu.Lock()
		c.online = make(map[string]bool, len(snap.UserIDs))
		for _, id := range snap.UserIDs {
			c.online[id] = true
		}
		c.mu.Unlock()
		c.changed()

	case models.EventMessageDelivered:
		var msg models.Message
		if err := event.Decode(&msg); err != nil {
			return
		}
		refresh, markRead := c.delivered(msg)
		if markRead {
			if err := c.cfg.API.MarkRead(ctx, msg.ConversationID); err != nil {
				c.logger.Warn("failed to mark thread read", "conversation_id", msg.ConversationID, "error", err)
			}
		}
		if refresh {
			if err := c.ChangeView(ctx, c.State().View); err != nil {
				c.logger.Warn("failed to refresh conversations", "error", err)
			}
		}
		c.changed()

	case models.EventNotification:
		var toast models.Notification
		if err := event.Decode(&toast); err != nil {
			return
		}
		if c.cfg.OnNotification != nil {
			c.cfg.OnNotification(toast)
		}

	case models.EventMessageAck:
		var ack models.MessageAck
		if err := event.Decode(&ack); err != nil {
			return
		}
		c.resolveAck(ack.ClientTempID, sendResult{msg: ack.Message})

	case models.EventMessageNack:
		var nack models.MessageNack
		if err := event.Decode(&nack); err != nil {
			return
		}
		var err error = errs.Unavailable("message rejected", nil)
		if nack.Error != nil {
			err = nack.Error
		}
		c.resolveAck(nack.ClientTempID, sendResult{err: err})

	case models.EventError:
		var payload models.ErrorPayload
		if err := event.Decode(&payload); err == nil && payload.Error != nil {
			c.logger.Warn("server rejected event", "kind", payload.Error.Kind, "message", payload.Error.Message)
		}
	}
}

func (c *Controller) resolveAck(tempID string, res sendResult) {
	c.mu.Lock()
	ch, ok := c.acks[tempID]
	delete(c.acks, tempID)
	c.mu.Unlock()
	if ok {
		ch <- res
	}
}

// delivered applies a pushed message and reports whether the conversation
// list must be reloaded because the conversation is not in it.
// delivered folds a pushed message into the state. It reports whether the
// conversation list must be reloaded and whether the message arrived unread
// in the open thread.
func (c *Controller) delivered(msg models.Message) (refresh, markRead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := msg.ReceiverID == c.cfg.UserID
	activeThread := c.active != nil && c.active.ID == msg.ConversationID
	fresh := !c.hasMessageLocked(msg.ID)
	if activeThread && fresh {
		if i := c.pendingEchoLocked(msg); i >= 0 {
			c.messages[i] = ThreadMessage{Message: msg}
		} else {
			c.messages = append(c.messages, ThreadMessage{Message: msg})
		}
	}

	i := c.indexLocked(msg.ConversationID)
	if i < 0 {
		return c.view == models.ViewInbox, activeThread && fresh && incoming
	}
	if incoming && !activeThread {
		c.items[i].UnreadCount++
	}
	c.previewLocked(msg)
	return false, activeThread && fresh && incoming
}

func (c *Controller) hasMessageLocked(id string) bool {
	for _, m := range c.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// pendingEchoLocked finds the oldest pending temp message the pushed copy
// of the user's own message corresponds to.
func (c *Controller) pendingEchoLocked(msg models.Message) int {
	if msg.SenderID != c.cfg.UserID {
		return -1
	}
	for i, m := range c.messages {
		if m.Status == StatusPending && strings.HasPrefix(m.ID, tempIDPrefix) && m.Body == msg.Body {
			return i
		}
	}
	return -1
}

func (c *Controller) previewLocked(msg models.Message) {
	i := c.indexLocked(msg.ConversationID)
	if i < 0 {
		return
	}
	last := msg
	c.items[i].LastMessage = &last
	if msg.CreatedAt.After(c.items[i].UpdatedAt) {
		c.items[i].UpdatedAt = msg.CreatedAt
	}
	c.sortLocked()
}

// TogglePin flips the pin of a conversation on this device.
func (c *Controller) TogglePin(conversationID string) error {
	c.mu.Lock()
	c.pins[conversationID] = !c.pins[conversationID]
	if !c.pins[conversationID] {
		delete(c.pins, conversationID)
	}
	if i := c.indexLocked(conversationID); i >= 0 {
		c.items[i].Pinned = c.pins[conversationID]
	}
	c.sortLocked()
	pins := make(map[string]bool, len(c.pins))
	for id, pinned := range c.pins {
		pins[id] = pinned
	}
	c.mu.Unlock()
	c.changed()

	if c.cfg.Pins == nil {
		return nil
	}
	return c.cfg.Pins.Save(pins)
}

// Archive moves the conversation out of the inbox.
func (c *Controller) Archive(ctx context.Context, conversationID string) error {
	if err := c.cfg.API.Archive(ctx, conversationID); err != nil {
		return err
	}
	c.drop(conversationID, models.ViewInbox, false)
	return nil
}

// Restore moves an archived conversation back to the inbox.
func (c *Controller) Restore(ctx context.Context, conversationID string) error {
	if err := c.cfg.API.Restore(ctx, conversationID); err != nil {
		return err
	}
	c.drop(conversationID, models.ViewArchived, false)
	return nil
}

// DeletePermanently removes the conversation from every view and closes
// it if it is open.
func (c *Controller) DeletePermanently(ctx context.Context, conversationID string) error {
	if err := c.cfg.API.DeletePermanently(ctx, conversationID); err != nil {
		return err
	}
	c.drop(conversationID, c.State().View, true)
	return nil
}

// drop removes the conversation from the list when the list shows view.
func (c *Controller) drop(conversationID string, view models.View, closeThread bool) {
	c.mu.Lock()
	if c.view == view {
		if i := c.indexLocked(conversationID); i >= 0 {
			c.items = append(c.items[:i], c.items[i+1:]...)
		}
	}
	if closeThread && c.active != nil && c.active.ID == conversationID {
		c.active = nil
		c.activePeer = ""
		c.messages = nil
		c.threadSeq++
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) indexLocked(conversationID string) int {
	for i := range c.items {
		if c.items[i].ID == conversationID {
			return i
		}
	}
	return -1
}

// sortLocked orders pinned conversations first, then most recent activity.
func (c *Controller) sortLocked() {
	sort.SliceStable(c.items, func(i, j int) bool {
		a, b := c.items[i], c.items[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

func (c *Controller) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
