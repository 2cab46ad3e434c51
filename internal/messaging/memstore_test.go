package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// memStore mirrors the postgres repositories closely enough to exercise
// the service end to end.
type memStore struct {
	mu            sync.Mutex
	seq           int
	clock         time.Time
	conversations map[string]*memConversation
	messages      []models.Message
	profiles      map[string]models.Profile
}

type memConversation struct {
	id         string
	users      [2]string
	visibility map[string]models.Visibility
	createdAt  time.Time
	updatedAt  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		conversations: map[string]*memConversation{},
		profiles:      map[string]models.Profile{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) model(c *memConversation) models.Conversation {
	conv := models.Conversation{ID: c.id, CreatedAt: c.createdAt, UpdatedAt: c.updatedAt}
	for _, u := range c.users {
		profile := s.profiles[u]
		profile.ID = u
		conv.Participants = append(conv.Participants, models.Participant{Profile: profile, Visibility: c.visibility[u]})
	}
	return conv
}

func (s *memStore) resolve(msg models.Message) models.Message {
	profile := s.profiles[msg.SenderID]
	profile.ID = msg.SenderID
	msg.Sender = &profile
	return msg
}

type memConversations struct{ *memStore }

func (r memConversations) GetOrCreateForPair(_ context.Context, userID, otherUserID string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID == otherUserID {
		return models.Conversation{}, repositories.ErrSelfConversation
	}
	a, b := models.OrderedPair(userID, otherUserID)
	for _, c := range r.conversations {
		if c.users == [2]string{a, b} {
			c.visibility[userID] = c.visibility[userID].Revisit()
			return r.model(c), nil
		}
	}
	now := r.tick()
	c := &memConversation{
		id:         r.nextID("c"),
		users:      [2]string{a, b},
		visibility: map[string]models.Visibility{a: models.VisibilityActive, b: models.VisibilityActive},
		createdAt:  now,
		updatedAt:  now,
	}
	r.conversations[c.id] = c
	return r.model(c), nil
}

func (r memConversations) Get(_ context.Context, id string) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return r.model(c), nil
}

func (r memConversations) ListForUser(_ context.Context, userID string, view models.View) ([]models.ConversationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.ConversationView{}
	for _, c := range r.conversations {
		v, ok := c.visibility[userID]
		if !ok || !v.VisibleIn(view) {
			continue
		}
		item := models.ConversationView{Conversation: r.model(c)}
		for i := range r.messages {
			m := r.messages[i]
			if m.ConversationID != c.id {
				continue
			}
			if m.ReceiverID == userID && !m.IsRead {
				item.UnreadCount++
			}
			last := r.resolve(m)
			item.LastMessage = &last
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r memConversations) ApplyTransition(_ context.Context, id, userID string, fn repositories.Transition) (models.Visibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return "", repositories.ErrNotParticipant
	}
	v, ok := c.visibility[userID]
	if !ok {
		return "", repositories.ErrNotParticipant
	}
	c.visibility[userID] = fn(v)
	return c.visibility[userID], nil
}

func (r memConversations) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	c.updatedAt = r.tick()
	for u, v := range c.visibility {
		c.visibility[u] = v.Resurface()
	}
	return nil
}

type memMessages struct{ *memStore }

func (r memMessages) Create(_ context.Context, convID, senderID, receiverID, body string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := models.Message{
		ID:             r.nextID("m"),
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		CreatedAt:      r.tick(),
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r memMessages) Get(_ context.Context, id string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return r.resolve(m), nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (r memMessages) ListForConversation(_ context.Context, convID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Message{}
	for _, m := range r.messages {
		if m.ConversationID == convID {
			out = append(out, r.resolve(m))
		}
	}
	return out, nil
}

func (r memMessages) MarkRead(_ context.Context, convID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID == convID && m.ReceiverID == userID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r memMessages) CountUnread(ctx context.Context, userID string) (int, error) {
	return r.count(userID, "")
}

func (r memMessages) CountUnreadForConversation(ctx context.Context, convID, userID string) (int, error) {
	return r.count(userID, convID)
}

func (r memMessages) count(userID, convID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ReceiverID != userID || m.IsRead || (convID != "" && m.ConversationID != convID) {
			continue
		}
		if r.conversations[m.ConversationID].visibility[userID] == models.VisibilityDeleted {
			continue
		}
		n++
	}
	return n, nil
}

type memProfiles struct{ *memStore }

func (r memProfiles) Upsert(_ context.Context, profile models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.ID] = profile
	return nil
}

// recordingFanout captures what the service hands to live delivery.
type recordingFanout struct {
	mu      sync.Mutex
	msgs    []models.Message
	origins []string
}

func (f *recordingFanout) MessageCreated(msg models.Message, originConnID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	f.origins = append(f.origins, originConnID)
}

func (f *recordingFanout) all() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.msgs...)
}

func (s *memStore) conversationsRepo() memConversations { return memConversations{s} }

func (s *memStore) messagesRepo() memMessages { return memMessages{s} }
