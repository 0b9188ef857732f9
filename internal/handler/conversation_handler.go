package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

type ConversationHandler struct {
	repo *repository.MongoRepository
}

func NewConversationHandler(repo *repository.MongoRepository) *ConversationHandler {
	return &ConversationHandler{repo: repo}
}

// CreateConversation creates a direct or group conversation. A direct
// conversation starts visible only to its creator; groups are visible to
// every member immediately.
func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	type Req struct {
		Participants []string `json:"participants"`
		IsGroup      bool     `json:"is_group"`
		GroupName    string   `json:"group_name"`
		GroupImage   string   `json:"group_image"`
	}

	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	userID := c.Locals("userID").(string)

	participants := req.Participants
	found := false
	for _, p := range participants {
		if p == userID {
			found = true
			break
		}
	}
	if !found {
		participants = append(participants, userID)
	}
	if len(participants) < 2 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "at least two participants required"})
	}
	if req.IsGroup && req.GroupName == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "group_name required"})
	}

	if !req.IsGroup {
		if len(participants) != 2 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "direct conversation needs exactly two participants"})
		}
		other := participants[0]
		if other == userID {
			other = participants[1]
		}
		existing, err := h.repo.FindDirectConversation(c.Context(), userID, other)
		if err == nil {
			return c.JSON(fiber.Map{"conversation": existing})
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	conv := &models.Conversation{
		Participants: participants,
		IsGroup:      req.IsGroup,
		GroupName:    req.GroupName,
		GroupImage:   req.GroupImage,
		Initiator:    userID,
	}
	if _, err := h.repo.CreateConversation(c.Context(), conv); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"conversation": conv})
}

// ListConversations returns the conversations visible to the caller,
// matching what auto-rejoin subscribes them to.
func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	convs, err := h.repo.ConversationsForUser(c.Context(), userID)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// GetConversation returns one conversation the caller participates in.
func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	conv, err := h.repo.Conversation(c.Context(), c.Params("conversation_id"))
	if err != nil {
		if err == repository.ErrNotFound {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !conv.HasParticipant(userID) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "not a participant"})
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

// DeleteConversation removes a conversation and its messages.
func (h *ConversationHandler) DeleteConversation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	conversationID := c.Params("conversation_id")

	conv, err := h.repo.Conversation(c.Context(), conversationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !conv.HasParticipant(userID) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "not a participant"})
	}
	if err := h.repo.DeleteConversation(c.Context(), conversationID); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "conversation deleted"})
}
