package ws

import (
	"sync"

	"github.com/fathima-sithara/realtime-chat/internal/registry"
)

type roomMember struct {
	handle registry.Handle
	userID string
}

// Hub owns conversation rooms. Membership is connection-scoped: it does not
// survive a reconnect and is rebuilt by the lifecycle manager's auto-rejoin,
// so leaving is always safe to repeat.
type Hub struct {
	mu            sync.RWMutex
	rooms         map[string]map[string]roomMember // conversationID -> handleID -> member
	roomsByHandle map[string]map[string]struct{}   // handleID -> set of conversationIDs
}

func NewHub() *Hub {
	return &Hub{
		rooms:         make(map[string]map[string]roomMember),
		roomsByHandle: make(map[string]map[string]struct{}),
	}
}

// Join adds a handle to a conversation room. Idempotent.
func (h *Hub) Join(conversationID string, handle registry.Handle, userID string) {
	if conversationID == "" || handle == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]roomMember)
		h.rooms[conversationID] = room
	}
	room[handle.ID()] = roomMember{handle: handle, userID: userID}

	set := h.roomsByHandle[handle.ID()]
	if set == nil {
		set = make(map[string]struct{})
		h.roomsByHandle[handle.ID()] = set
	}
	set[conversationID] = struct{}{}
}

// Leave removes a handle from one room. Idempotent.
func (h *Hub) Leave(conversationID string, handleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, handleID)
}

// LeaveAll removes a handle from every room it joined; part of disconnect
// cleanup.
func (h *Hub) LeaveAll(handleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.roomsByHandle[handleID] {
		h.leaveLocked(conversationID, handleID)
	}
}

func (h *Hub) leaveLocked(conversationID, handleID string) {
	if room := h.rooms[conversationID]; room != nil {
		delete(room, handleID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if set := h.roomsByHandle[handleID]; set != nil {
		delete(set, conversationID)
		if len(set) == 0 {
			delete(h.roomsByHandle, handleID)
		}
	}
}

// InRoom reports whether the handle is currently a member of the room.
func (h *Hub) InRoom(conversationID, handleID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	if room == nil {
		return false
	}
	_, ok := room[handleID]
	return ok
}

// BroadcastRoom pushes an event to every member of the room except handles
// bound to one of the excluded users. Pass no exclusions to reach the whole
// room, originator included.
func (h *Hub) BroadcastRoom(conversationID, event string, data any, excludeUserIDs ...string) {
	h.mu.RLock()
	members := make([]roomMember, 0, len(h.rooms[conversationID]))
	for _, m := range h.rooms[conversationID] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	excluded := make(map[string]bool, len(excludeUserIDs))
	for _, u := range excludeUserIDs {
		excluded[u] = true
	}
	for _, m := range members {
		if excluded[m.userID] {
			continue
		}
		m.handle.Deliver(event, data)
	}
}
