package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/messaging"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type testDeps struct {
	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
	router        *gin.Engine
}

func setupMessagesRouter(userID string) *testDeps {
	gin.SetMode(gin.TestMode)
	deps := &testDeps{
		conversations: new(mocks.ConversationRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
	}
	service := messaging.New(messaging.Config{
		Conversations: deps.conversations,
		Messages:      deps.messages,
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	NewMessagesHandler(service).Register(r.Group("/api/messages"))
	deps.router = r
	return deps
}

func (d *testDeps) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.router.ServeHTTP(rec, req)
	return rec
}

func (d *testDeps) assertExpectations(t *testing.T) {
	d.conversations.AssertExpectations(t)
	d.messages.AssertExpectations(t)
}

func pairConversation(id string, visibilities ...models.Visibility) models.Conversation {
	users := []string{"alice", "bob"}
	conv := models.Conversation{ID: id, UpdatedAt: time.Now()}
	for i, u := range users {
		v := models.VisibilityActive
		if i < len(visibilities) {
			v = visibilities[i]
		}
		conv.Participants = append(conv.Participants, models.Participant{Profile: models.Profile{ID: u}, Visibility: v})
	}
	return conv
}

type errorBody struct {
	Error struct {
		Kind    string            `json:"kind"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListConversationsDefaultsToInbox(t *testing.T) {
	d := setupMessagesRouter("alice")
	d.conversations.On("ListForUser", mock.Anything, "alice", models.ViewInbox).
		Return([]models.ConversationView{{Conversation: pairConversation("c1"), UnreadCount: 2}}, nil).Once()

	rec := d.do(http.MethodGet, "/api/messages/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0]["id"])
	assert.EqualValues(t, 2, items[0]["unreadCount"])
	d.assertExpectations(t)
}

func TestListConversationsArchivedViews(t *testing.T) {
	for _, path := range []string{"/api/messages/conversations?view=archived", "/api/messages/hidden"} {
		t.Run(path, func(t *testing.T) {
			d := setupMessagesRouter("alice")
			d.conversations.On("ListForUser", mock.Anything, "alice", models.ViewArchived).
				Return([]models.ConversationView{}, nil).Once()

			rec := d.do(http.MethodGet, path, "")

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[]`, rec.Body.String())
			d.assertExpectations(t)
		})
	}
}

func TestListConversationsRejectsUnknownView(t *testing.T) {
	d := setupMessagesRouter("alice")

	rec := d.do(http.MethodGet, "/api/messages/conversations?view=trash", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "view", keys(decodeError(t, rec).Error.Fields)[0])
}

func TestListConversationsStoreError(t *testing.T) {
	d := setupMessagesRouter("alice")
	d.conversations.On("ListForUser", mock.Anything, "alice", models.ViewInbox).Return(nil, assert.AnError).Once()

	rec := d.do(http.MethodGet, "/api/messages/conversations", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal", body.Error.Kind)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestUnreadCount(t *testing.T) {
	d := setupMessagesRouter("bob")
	d.messages.On("CountUnread", mock.Anything, "bob").Return(4, nil).Once()

	rec := d.do(http.MethodGet, "/api/messages/unread-count", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":4}`, rec.Body.String())
}

func TestConversationUnreadCountHidesForeignConversations(t *testing.T) {
	d := setupMessagesRouter("carol")
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()

	rec := d.do(http.MethodGet, "/api/messages/conversation/c1/unread-count", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	d.messages.AssertNotCalled(t, "CountUnreadForConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestConversationUnreadCount(t *testing.T) {
	d := setupMessagesRouter("bob")
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	d.messages.On("CountUnreadForConversation", mock.Anything, "c1", "bob").Return(1, nil).Once()

	rec := d.do(http.MethodGet, "/api/messages/conversation/c1/unread-count", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":1}`, rec.Body.String())
	d.assertExpectations(t)
}

func TestOpenThread(t *testing.T) {
	d := setupMessagesRouter("alice")
	d.conversations.On("GetOrCreateForPair", mock.Anything, "alice", "bob").Return(pairConversation("c1"), nil).Once()
	d.messages.On("ListForConversation", mock.Anything, "c1").
		Return([]models.Message{{ID: "m1", ConversationID: "c1", SenderID: "bob", ReceiverID: "alice", Body: "hey"}}, nil).Once()

	rec := d.do(http.MethodGet, "/api/messages/bob", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var thread models.Thread
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Equal(t, "c1", thread.Conversation.ID)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "hey", thread.Messages[0].Body)
	d.assertExpectations(t)
}

func TestOpenThreadWithSelf(t *testing.T) {
	d := setupMessagesRouter("alice")

	rec := d.do(http.MethodGet, "/api/messages/alice", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendStoresMessage(t *testing.T) {
	d := setupMessagesRouter("alice")
	stored := models.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Body: "hello"}
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	d.messages.On("Create", mock.Anything, "c1", "alice", "bob", "hello").Return(stored, nil).Once()
	d.conversations.On("Touch", mock.Anything, "c1").Return(nil).Once()
	d.messages.On("Get", mock.Anything, "m1").Return(stored, nil).Once()

	rec := d.do(http.MethodPost, "/api/messages", `{"receiverId":"bob","message":"  hello  ","conversationId":"c1"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "m1", msg.ID)
	d.assertExpectations(t)
}

func TestSendValidation(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"blank message":  {`{"receiverId":"bob","message":"   ","conversationId":"c1"}`, "message"},
		"missing peer":   {`{"message":"hi","conversationId":"c1"}`, "receiverId"},
		"to self":        {`{"receiverId":"alice","message":"hi","conversationId":"c1"}`, "receiverId"},
		"no convo":       {`{"receiverId":"bob","message":"hi"}`, "conversationId"},
		"malformed json": {`{"receiverId":`, "body"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := setupMessagesRouter("alice")

			rec := d.do(http.MethodPost, "/api/messages", tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "invalid_argument", body.Error.Kind)
			assert.Contains(t, body.Error.Fields, tc.field)
			d.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSendByNonParticipant(t *testing.T) {
	d := setupMessagesRouter("carol")
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()

	rec := d.do(http.MethodPost, "/api/messages", `{"receiverId":"bob","message":"hi","conversationId":"c1"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", decodeError(t, rec).Error.Kind)
}

func TestMarkRead(t *testing.T) {
	d := setupMessagesRouter("bob")
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
	d.messages.On("MarkRead", mock.Anything, "c1", "bob").Return(int64(3), nil).Once()

	rec := d.do(http.MethodPatch, "/api/messages/read/c1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Messages marked as read","updated":3}`, rec.Body.String())
}

func TestMarkReadUnknownConversation(t *testing.T) {
	d := setupMessagesRouter("bob")
	d.conversations.On("Get", mock.Anything, "nope").Return(nil, repositories.ErrConversationNotFound).Once()

	rec := d.do(http.MethodPatch, "/api/messages/read/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVisibilityRoutes(t *testing.T) {
	cases := []struct {
		method string
		path   string
		result models.Visibility
	}{
		{http.MethodPatch, "/api/messages/conversation/c1/archive", models.VisibilityArchived},
		{http.MethodPatch, "/api/messages/conversation/c1/restore", models.VisibilityActive},
		{http.MethodDelete, "/api/messages/conversation/c1/permanent", models.VisibilityDeleted},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			d := setupMessagesRouter("alice")
			d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()
			d.conversations.On("ApplyTransition", mock.Anything, "c1", "alice").Return(tc.result, nil).Once()

			rec := d.do(tc.method, tc.path, "")

			require.Equal(t, http.StatusOK, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tc.result), body["visibility"])
			d.assertExpectations(t)
		})
	}
}

func TestPermanentDeleteByNonParticipant(t *testing.T) {
	d := setupMessagesRouter("carol")
	d.conversations.On("Get", mock.Anything, "c1").Return(pairConversation("c1"), nil).Once()

	rec := d.do(http.MethodDelete, "/api/messages/conversation/c1/permanent", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	d.conversations.AssertNotCalled(t, "ApplyTransition", mock.Anything, mock.Anything, mock.Anything)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
