package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/registry"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type StatusHandler struct {
	tracker *presence.Tracker
	reg     *registry.Registry
	hub     *ws.Hub
	cache   *cache.Client
}

func NewStatusHandler(tracker *presence.Tracker, reg *registry.Registry, hub *ws.Hub, cache *cache.Client) *StatusHandler {
	return &StatusHandler{tracker: tracker, reg: reg, hub: hub, cache: cache}
}

// UpdateTypingStatus broadcasts a typing indicator to the conversation
// room, excluding the typist's own handles.
func (h *StatusHandler) UpdateTypingStatus(c *fiber.Ctx) error {
	type Req struct {
		ConversationID string `json:"conversation_id"`
		IsTyping       bool   `json:"is_typing"`
	}

	var req Req
	if err := c.BodyParser(&req); err != nil || req.ConversationID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	userID := c.Locals("userID").(string)

	if h.cache != nil {
		_ = h.cache.SetTyping(c.Context(), req.ConversationID, userID, req.IsTyping)
	}
	event := ws.EvTyping
	if !req.IsTyping {
		event = ws.EvStopTyping
	}
	h.hub.BroadcastRoom(req.ConversationID, event, ws.TypingPayload{
		Sender:         userID,
		ConversationID: req.ConversationID,
	}, userID)
	return c.JSON(fiber.Map{"message": "status updated"})
}

// TypingUsers lists who is currently typing in a conversation.
func (h *StatusHandler) TypingUsers(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.JSON(fiber.Map{"typing": []string{}})
	}
	users, err := h.cache.GetTypingUsers(c.Context(), c.Params("conversation_id"))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"typing": users})
}

// OnlineUsers lists every user with at least one live connection.
func (h *StatusHandler) OnlineUsers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"online": h.reg.AllOnlineUserIDs()})
}

// PresenceSnapshot returns online flag plus last seen for a batch of users
// in one call.
func (h *StatusHandler) PresenceSnapshot(c *fiber.Ctx) error {
	type Req struct {
		UserIDs []string `json:"user_ids"`
	}

	var req Req
	if err := c.BodyParser(&req); err != nil || len(req.UserIDs) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "user_ids required"})
	}
	statuses := h.tracker.Snapshot(c.Context(), req.UserIDs)
	return c.JSON(fiber.Map{"statuses": statuses})
}
