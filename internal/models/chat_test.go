package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConversation() Conversation {
	return Conversation{
		ID: "c1",
		Participants: []Participant{
			{Profile: Profile{ID: "alice", DisplayName: "Alice"}, Visibility: VisibilityArchived},
			{Profile: Profile{ID: "bob", DisplayName: "Bob"}, Visibility: VisibilityDeleted},
		},
	}
}

func TestConversationParticipants(t *testing.T) {
	conv := testConversation()

	assert.True(t, conv.HasParticipant("alice"))
	assert.False(t, conv.HasParticipant("carol"))

	peer, ok := conv.Peer("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", peer.ID)

	v, ok := conv.VisibilityFor("bob")
	require.True(t, ok)
	assert.Equal(t, VisibilityDeleted, v)
	_, ok = conv.VisibilityFor("carol")
	assert.False(t, ok)
}

func TestOrderedPair(t *testing.T) {
	a, b := OrderedPair("zed", "amy")
	assert.Equal(t, "amy", a)
	assert.Equal(t, "zed", b)
}

func TestConversationViewJSONCarriesDerivedLists(t *testing.T) {
	view := ConversationView{
		Conversation: testConversation(),
		LastMessage:  &Message{ID: "m1", Body: "hello"},
		UnreadCount:  3,
	}

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "c1", got["id"])
	assert.Equal(t, []any{"alice"}, got["hiddenFor"])
	assert.Equal(t, []any{"bob"}, got["permanentlyDeletedFor"])
	assert.EqualValues(t, 3, got["unreadCount"])
	assert.Equal(t, "hello", got["lastMessage"].(map[string]any)["message"])

	var back ConversationView
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "c1", back.ID)
	assert.Equal(t, 3, back.UnreadCount)
	require.Len(t, back.Participants, 2)
	assert.Equal(t, VisibilityArchived, back.Participants[0].Visibility)
}
