package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/delivery"
	handlers "github.com/fathima-sithara/realtime-chat/internal/handler"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/registry"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/storage"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type Deps struct {
	Repo     *repository.MongoRepository
	Cache    *cache.Client
	Registry *registry.Registry
	Hub      *ws.Hub
	Router   *ws.Router
	Delivery *delivery.Service
	Tracker  *presence.Tracker
	S3       *storage.S3Store
	JWT      fiber.Handler
	MsgRate  int
}

func Register(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api/v1")

	conversations := api.Group("/conversations")
	conversations.Use(d.JWT)
	convHandler := handlers.NewConversationHandler(d.Repo)
	conversations.Post("/", convHandler.CreateConversation)
	conversations.Get("/", convHandler.ListConversations)
	conversations.Get("/:conversation_id", convHandler.GetConversation)
	conversations.Delete("/:conversation_id", convHandler.DeleteConversation)

	messages := api.Group("/messages")
	messages.Use(d.JWT)
	msgHandler := handlers.NewMessageHandler(d.Repo, d.Router, d.Delivery, d.S3)
	messages.Post("/send", msgHandler.SendMessage)
	messages.Post("/upload", msgHandler.UploadAttachment)
	messages.Get("/:conversation_id", msgHandler.GetMessages)
	messages.Post("/:conversation_id/seen", msgHandler.MarkConversationSeen)
	messages.Post("/:message_id/ephemeral-viewed", msgHandler.MarkEphemeralViewed)

	status := api.Group("/status")
	status.Use(d.JWT)
	statusHandler := handlers.NewStatusHandler(d.Tracker, d.Registry, d.Hub, d.Cache)
	status.Post("/typing", statusHandler.UpdateTypingStatus)
	status.Get("/typing/:conversation_id", statusHandler.TypingUsers)
	status.Get("/online", statusHandler.OnlineUsers)
	status.Post("/presence", statusHandler.PresenceSnapshot)

	// the upgrade must be authenticated; the connection still starts
	// Unbound and only binds on its userConnected event
	app.Use("/ws", d.JWT, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", ws.NewWebsocketHandler(d.Router, d.MsgRate))
}
