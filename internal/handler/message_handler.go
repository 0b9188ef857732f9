package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-chat/internal/delivery"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/storage"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type MessageHandler struct {
	repo     *repository.MongoRepository
	router   *ws.Router
	delivery *delivery.Service
	store    *storage.S3Store
}

func NewMessageHandler(repo *repository.MongoRepository, router *ws.Router, dlv *delivery.Service, store *storage.S3Store) *MessageHandler {
	return &MessageHandler{repo: repo, router: router, delivery: dlv, store: store}
}

// SendMessage is the REST fallback for the ws sendMessage event; both run
// the same flow, so fan-out and visibility behave identically.
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var req ws.SendMessagePayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	req.Sender = c.Locals("userID").(string)
	if err := req.Validate(); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	msg, err := h.router.SendMessage(c.Context(), &req)
	if err != nil {
		switch err {
		case ws.ErrNotParticipant:
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		case ws.ErrRateLimited:
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": msg})
}

// GetMessages fetches messages of a conversation, newest page first.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	conversationID := c.Params("conversation_id")
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

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

	messages, err := h.repo.Messages(c.Context(), conversationID, page, limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// MarkConversationSeen marks every unseen message in the conversation seen
// by the caller and notifies the senders.
func (h *MessageHandler) MarkConversationSeen(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	conversationID := c.Params("conversation_id")

	affected, err := h.delivery.MarkConversationSeen(c.Context(), conversationID, userID)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrNotFound) || errors.Is(err, repository.ErrNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		case errors.Is(err, delivery.ErrNotAllowed):
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "not a participant"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"seen_message_ids": affected})
}

// MarkEphemeralViewed consumes an ephemeral message for the caller. The
// stored asset is gone before this returns success; repeat calls are
// no-ops.
func (h *MessageHandler) MarkEphemeralViewed(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	messageID := c.Params("message_id")

	already, err := h.delivery.MarkEphemeralViewed(c.Context(), messageID, userID)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrNotFound) || errors.Is(err, repository.ErrNotFound):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "message not found"})
		case errors.Is(err, delivery.ErrNotEphemeral):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "message is not ephemeral"})
		case errors.Is(err, delivery.ErrNotAllowed):
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "not allowed to view"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"already_viewed": already})
}

// UploadAttachment stores a message attachment and returns its descriptor
// for use in a subsequent sendMessage.
func (h *MessageHandler) UploadAttachment(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "attachment storage not configured"})
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}
	src, err := file.Open()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	key := fmt.Sprintf("attachments/%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	contentType := file.Header.Get("Content-Type")
	publicURL, err := h.store.Upload(c.Context(), key, contentType, data)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if publicURL == "" {
		publicURL, err = h.store.PresignURL(c.Context(), key, 24*time.Hour)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	att := models.Attachment{
		URL:      publicURL,
		Key:      key,
		Filename: file.Filename,
		Size:     file.Size,
		MimeType: contentType,
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"attachment": att})
}
