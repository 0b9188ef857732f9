package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/registry"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

type fakeRouterStore struct {
	conversations map[string]*models.Conversation
	messages      []*models.Message
	revealed      map[string][]string
	nextID        int
	findErr       error // overrides direct-conversation lookups when set
}

func newFakeRouterStore() *fakeRouterStore {
	return &fakeRouterStore{
		conversations: make(map[string]*models.Conversation),
		revealed:      make(map[string][]string),
	}
}

func (f *fakeRouterStore) Conversation(_ context.Context, id string) (*models.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRouterStore) FindDirectConversation(_ context.Context, a, b string) (*models.Conversation, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, c := range f.conversations {
		if !c.IsGroup && c.HasParticipant(a) && c.HasParticipant(b) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRouterStore) CreateConversation(_ context.Context, conv *models.Conversation) (string, error) {
	f.nextID++
	conv.ID = string(rune('A' + f.nextID))
	f.conversations[conv.ID] = conv
	return conv.ID, nil
}

func (f *fakeRouterStore) ConversationsForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, c := range f.conversations {
		if c.HasParticipant(userID) && c.IsVisibleTo(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeRouterStore) RevealToParticipants(_ context.Context, conversationID string, userIDs []string) error {
	f.revealed[conversationID] = append(f.revealed[conversationID], userIDs...)
	c := f.conversations[conversationID]
	c.VisibleTo = append(c.VisibleTo, userIDs...)
	return nil
}

func (f *fakeRouterStore) TouchLastMessage(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeRouterStore) InsertMessage(_ context.Context, msg *models.Message) error {
	msg.ID = "m" + string(rune('0'+len(f.messages)+1))
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeRouterStore) EditMessage(context.Context, string, string) error   { return nil }
func (f *fakeRouterStore) SoftDeleteMessage(context.Context, string) error    { return nil }
func (f *fakeRouterStore) SetPinned(context.Context, string, bool) error      { return nil }
func (f *fakeRouterStore) AddReaction(context.Context, string, string, string) error {
	return nil
}
func (f *fakeRouterStore) SetUserOnline(context.Context, string) error { return nil }
func (f *fakeRouterStore) SetUserOffline(context.Context, string, time.Time) error {
	return nil
}

func newTestRouter(store Store) (*Router, *registry.Registry, *Hub) {
	reg := registry.New()
	hub := NewHub()
	return NewRouter(store, reg, hub, nil), reg, hub
}

func TestSendMessageFanOut(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		VisibleTo:    []string{"alice", "bob"},
	}
	router, reg, hub := newTestRouter(store)

	alice := &stubHandle{id: "ha"}
	bob := &stubHandle{id: "hb"}
	watcher := &stubHandle{id: "hw"}
	reg.Bind("alice", alice)
	reg.Bind("bob", bob)
	reg.Bind("watcher", watcher)
	hub.Join("c1", alice, "alice")
	hub.Join("c1", bob, "bob")

	msg, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", ConversationID: "c1", Content: "hi",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	assert.Equal(t, []string{EvMessageReceived, EvConversationUpdated, EvGlobalUpdate}, bob.received())
	assert.Equal(t, []string{EvConversationUpdated, EvGlobalUpdate}, alice.received(), "no self-echo of the message itself")
	assert.Equal(t, []string{EvGlobalUpdate}, watcher.received(), "non-members only get the global signal")
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
	}
	router, _, _ := newTestRouter(store)

	_, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "mallory", ConversationID: "c1", Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendMessageCreatesDirectConversation(t *testing.T) {
	store := newFakeRouterStore()
	router, _, _ := newTestRouter(store)

	msg, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", Receiver: "bob", Content: "hi",
	})
	require.NoError(t, err)

	conv := store.conversations[msg.ConversationID]
	require.NotNil(t, conv)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, "alice", conv.Initiator)
	assert.Contains(t, conv.VisibleTo, "alice")
	assert.Contains(t, conv.VisibleTo, "bob", "first message reveals the conversation")
}

func TestSendMessageSurfacesLookupFailure(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		VisibleTo:    []string{"alice", "bob"},
	}
	store.findErr = errors.New("network timeout")
	router, _, _ := newTestRouter(store)

	_, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", Receiver: "bob", Content: "hi",
	})
	require.Error(t, err)
	assert.Len(t, store.conversations, 1, "a failed lookup must not mint a duplicate conversation")
	assert.Empty(t, store.messages)
}

func TestFirstMessageRevealsToOnlineReceiver(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		Initiator:    "alice",
		VisibleTo:    []string{"alice"},
	}
	router, reg, hub := newTestRouter(store)

	bobPhone := &stubHandle{id: "hb1"}
	bobLaptop := &stubHandle{id: "hb2"}
	reg.Bind("bob", bobPhone)
	reg.Bind("bob", bobLaptop)

	_, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", ConversationID: "c1", Content: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bob"}, store.revealed["c1"], "visibility persisted")
	assert.True(t, hub.InRoom("c1", "hb1"), "every live handle joins the room")
	assert.True(t, hub.InRoom("c1", "hb2"))
	assert.Contains(t, bobPhone.received(), EvNewConversationVisible)
	assert.Contains(t, bobLaptop.received(), EvNewConversationVisible)
	assert.Contains(t, bobPhone.received(), EvConversationBecameVisible, "room-wide fallback included")
}

func TestRevealSkipsWhenAlreadyVisible(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		VisibleTo:    []string{"alice", "bob"},
	}
	router, _, _ := newTestRouter(store)

	_, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", ConversationID: "c1", Content: "hi",
	})
	require.NoError(t, err)
	assert.Empty(t, store.revealed["c1"])
}

func TestOfflineHiddenParticipantOnlyPersisted(t *testing.T) {
	store := newFakeRouterStore()
	store.conversations["c1"] = &models.Conversation{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		Initiator:    "alice",
		VisibleTo:    []string{"alice"},
	}
	router, _, hub := newTestRouter(store)

	_, err := router.SendMessage(context.Background(), &SendMessagePayload{
		Sender: "alice", ConversationID: "c1", Content: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bob"}, store.revealed["c1"])
	assert.False(t, hub.InRoom("c1", "hb1"), "no handles, nothing to join")
}
