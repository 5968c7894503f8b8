package routes

import (
	"cchat/internal/handlers"
	"cchat/internal/middleware"
	"cchat/internal/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *handlers.Handler, tokens *utils.TokenManager, limits middleware.Limits, gatherer prometheus.Gatherer) {
	// Health check (public)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "cchat API is running",
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/v1")
	authRequired := middleware.Auth(tokens)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", limits.Auth, h.Register)
	auth.Post("/login", limits.Auth, h.Login)
	auth.Post("/forgot-password", limits.Auth, h.ForgotPassword)
	auth.Post("/verify-otp", limits.Auth, h.VerifyOTP)
	auth.Post("/reset-password", limits.Auth, h.ResetPassword)
	auth.Get("/me", authRequired, h.GetMe)

	// User routes (protected)
	users := api.Group("/users", authRequired)
	users.Get("/user", limits.Read, h.SearchUsers)
	users.Post("/user", limits.Write, h.UpdateProfile)

	// Conversation routes (protected)
	conversations := api.Group("/conversations", authRequired)
	conversations.Get("/conversation", limits.Read, h.GetConversations)
	conversations.Post("/conversation", limits.Write, h.CreateConversation)
	conversations.Delete("/conversation/:id", limits.Write, h.DeleteConversation)
	conversations.Delete("/:id", limits.Write, h.DeleteConversation)

	// Message routes (protected)
	messages := api.Group("/messages", authRequired)
	messages.Get("/", limits.Read, h.GetMessages)
	messages.Get("/:conversationId", limits.Read, h.GetMessages)
	messages.Post("/", limits.Write, h.SendMessage)
	messages.Put("/:id", limits.Write, h.EditMessage)
	messages.Delete("/:id", limits.Write, h.DeleteMessage)

	// WebSocket route (protected)
	api.Get("/ws", authRequired, handlers.WebSocketUpgrade, websocket.New(h.WebSocket))
	api.Get("/ws/stats", authRequired, h.WebSocketStats)
}
