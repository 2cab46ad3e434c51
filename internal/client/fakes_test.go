package client

import (
	"context"
	"sync"
	"time"

	"messaging-service/internal/models"
)

const me = "me"

type fakeAPI struct {
	mu        sync.Mutex
	lists     map[models.View][]models.ConversationView
	threads   map[string]models.Thread
	gates     map[string]chan struct{}
	sendFn    func(receiverID, conversationID, body string) (models.Message, error)
	listCalls int
	openCalls int
	sendCalls int
	marked    []string
	archived  []string
	restored  []string
	deleted   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists:   map[models.View][]models.ConversationView{},
		threads: map[string]models.Thread{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeAPI) ListConversations(_ context.Context, view models.View) ([]models.ConversationView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]models.ConversationView(nil), f.lists[view]...), nil
}

func (f *fakeAPI) OpenThread(ctx context.Context, peerID string) (models.Thread, error) {
	f.mu.Lock()
	f.openCalls++
	gate := f.gates[peerID]
	thread := f.threads[peerID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Thread{}, ctx.Err()
		}
	}
	return thread, nil
}

func (f *fakeAPI) Send(_ context.Context, receiverID, conversationID, body string) (models.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return models.Message{ID: "rest-1", ConversationID: conversationID, SenderID: me, ReceiverID: receiverID, Body: body, CreatedAt: time.Now()}, nil
	}
	return fn(receiverID, conversationID, body)
}

func (f *fakeAPI) MarkRead(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, conversationID)
	return nil
}

func (f *fakeAPI) UnreadCount(context.Context) (int, error) { return 0, nil }

func (f *fakeAPI) Archive(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, conversationID)
	return nil
}

func (f *fakeAPI) Restore(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, conversationID)
	return nil
}

func (f *fakeAPI) DeletePermanently(_ context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, conversationID)
	return nil
}

func (f *fakeAPI) counts() (list, open, send int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.openCalls, f.sendCalls
}

type fakeLive struct {
	events  chan models.Event
	once    sync.Once
	mu      sync.Mutex
	sent    []models.Event
	sendErr error
	onSend  func(models.Event)
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan models.Event, 16)}
}

func (l *fakeLive) Send(event models.Event) error {
	l.mu.Lock()
	l.sent = append(l.sent, event)
	err, hook := l.sendErr, l.onSend
	l.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(event)
	}
	return nil
}

func (l *fakeLive) Events() <-chan models.Event { return l.events }

func (l *fakeLive) Close() error {
	l.once.Do(func() { close(l.events) })
	return nil
}

func (l *fakeLive) push(t models.EventType, payload any) {
	event, err := models.NewEvent(t, payload)
	if err != nil {
		panic(err)
	}
	l.events <- event
}

func (l *fakeLive) sentTypes() []models.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]models.EventType, 0, len(l.sent))
	for _, e := range l.sent {
		types = append(types, e.Type)
	}
	return types
}

func conversation(id, peer string, updatedAt time.Time) models.Conversation {
	return models.Conversation{
		ID: id,
		Participants: []models.Participant{
			{Profile: models.Profile{ID: me, DisplayName: "Me"}, Visibility: models.VisibilityActive},
			{Profile: models.Profile{ID: peer, DisplayName: peer}, Visibility: models.VisibilityActive},
		},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func inboxItem(id, peer string, updatedAt time.Time) models.ConversationView {
	return models.ConversationView{Conversation: conversation(id, peer, updatedAt)}
}
