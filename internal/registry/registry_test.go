package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id     string
	mu     sync.Mutex
	events []string
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Deliver(event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeHandle) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestBindAndLookup(t *testing.T) {
	r := New()
	h1 := &fakeHandle{id: "c1"}
	h2 := &fakeHandle{id: "c2"}

	r.Bind("alice", h1)
	r.Bind("alice", h2)

	handles := r.HandlesOf("alice")
	require.Len(t, handles, 2)
	assert.True(t, r.IsOnline("alice"))

	user, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestBindIdempotent(t *testing.T) {
	r := New()
	h := &fakeHandle{id: "c1"}

	r.Bind("alice", h)
	r.Bind("alice", h)

	assert.Len(t, r.HandlesOf("alice"), 1)
}

func TestBindRefusesSecondUser(t *testing.T) {
	r := New()
	h := &fakeHandle{id: "c1"}

	r.Bind("alice", h)
	r.Bind("bob", h)

	assert.Len(t, r.HandlesOf("alice"), 1, "first binding kept")
	assert.Empty(t, r.HandlesOf("bob"), "handle never appears under a second user")
	user, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", user)

	r.UnbindID("c1")
	assert.False(t, r.IsOnline("alice"))
	assert.False(t, r.IsOnline("bob"))
}

func TestOfflineMeansEmptySlice(t *testing.T) {
	r := New()
	handles := r.HandlesOf("nobody")
	require.NotNil(t, handles)
	assert.Empty(t, handles)
	assert.False(t, r.IsOnline("nobody"))
}

func TestUnbindLastHandleGoesOffline(t *testing.T) {
	r := New()
	h1 := &fakeHandle{id: "c1"}
	h2 := &fakeHandle{id: "c2"}
	r.Bind("alice", h1)
	r.Bind("alice", h2)

	r.UnbindID("c1")
	assert.True(t, r.IsOnline("alice"), "one handle still bound")

	r.UnbindID("c2")
	assert.False(t, r.IsOnline("alice"))
	assert.Empty(t, r.AllOnlineUserIDs())
}

func TestUnbindUnknownIsNoop(t *testing.T) {
	r := New()
	h := &fakeHandle{id: "c1"}
	r.Bind("alice", h)

	r.UnbindID("never-registered")

	assert.True(t, r.IsOnline("alice"))
}

func TestDeliverToUserHitsEveryHandle(t *testing.T) {
	r := New()
	h1 := &fakeHandle{id: "c1"}
	h2 := &fakeHandle{id: "c2"}
	other := &fakeHandle{id: "c3"}
	r.Bind("alice", h1)
	r.Bind("alice", h2)
	r.Bind("bob", other)

	r.DeliverToUser("alice", "ping", nil)

	assert.Equal(t, 1, h1.count())
	assert.Equal(t, 1, h2.count())
	assert.Equal(t, 0, other.count())
}

func TestDeliverToAll(t *testing.T) {
	r := New()
	h1 := &fakeHandle{id: "c1"}
	h2 := &fakeHandle{id: "c2"}
	r.Bind("alice", h1)
	r.Bind("bob", h2)

	r.DeliverToAll("globalUpdate", nil)

	assert.Equal(t, 1, h1.count())
	assert.Equal(t, 1, h2.count())
}

func TestConcurrentBindUnbind(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h := &fakeHandle{id: string(rune('a' + n%26))}
			r.Bind("alice", h)
			r.DeliverToUser("alice", "e", nil)
			r.UnbindID(h.ID())
		}(i)
	}
	wg.Wait()
	assert.False(t, r.IsOnline("alice"))
}
