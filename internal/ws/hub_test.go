package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubHandle struct {
	id     string
	mu     sync.Mutex
	events []string
}

func (s *stubHandle) ID() string { return s.id }

func (s *stubHandle) Deliver(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *stubHandle) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestJoinAndBroadcast(t *testing.T) {
	h := NewHub()
	a := &stubHandle{id: "ca"}
	b := &stubHandle{id: "cb"}
	h.Join("conv1", a, "alice")
	h.Join("conv1", b, "bob")

	h.BroadcastRoom("conv1", "messageReceived", nil, "alice")

	assert.Empty(t, a.received(), "sender's handles excluded")
	assert.Equal(t, []string{"messageReceived"}, b.received())
}

func TestBroadcastWholeRoom(t *testing.T) {
	h := NewHub()
	a := &stubHandle{id: "ca"}
	b := &stubHandle{id: "cb"}
	h.Join("conv1", a, "alice")
	h.Join("conv1", b, "bob")

	h.BroadcastRoom("conv1", "conversationUpdated", nil)

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestExclusionCoversAllHandlesOfUser(t *testing.T) {
	h := NewHub()
	phone := &stubHandle{id: "phone"}
	laptop := &stubHandle{id: "laptop"}
	other := &stubHandle{id: "other"}
	h.Join("conv1", phone, "alice")
	h.Join("conv1", laptop, "alice")
	h.Join("conv1", other, "bob")

	h.BroadcastRoom("conv1", "typing", nil, "alice")

	assert.Empty(t, phone.received())
	assert.Empty(t, laptop.received())
	assert.Len(t, other.received(), 1)
}

func TestJoinIdempotent(t *testing.T) {
	h := NewHub()
	a := &stubHandle{id: "ca"}
	h.Join("conv1", a, "alice")
	h.Join("conv1", a, "alice")

	h.BroadcastRoom("conv1", "e", nil)
	assert.Len(t, a.received(), 1, "duplicate join must not double-deliver")
}

func TestLeaveIsRepeatable(t *testing.T) {
	h := NewHub()
	a := &stubHandle{id: "ca"}
	h.Join("conv1", a, "alice")

	h.Leave("conv1", "ca")
	h.Leave("conv1", "ca")
	h.Leave("never-joined", "ca")

	assert.False(t, h.InRoom("conv1", "ca"))
	h.BroadcastRoom("conv1", "e", nil)
	assert.Empty(t, a.received())
}

func TestLeaveAll(t *testing.T) {
	h := NewHub()
	a := &stubHandle{id: "ca"}
	h.Join("conv1", a, "alice")
	h.Join("conv2", a, "alice")

	h.LeaveAll("ca")

	assert.False(t, h.InRoom("conv1", "ca"))
	assert.False(t, h.InRoom("conv2", "ca"))
}

func TestBroadcastEmptyRoom(t *testing.T) {
	h := NewHub()
	assert.NotPanics(t, func() {
		h.BroadcastRoom("ghost", "e", nil)
	})
}
