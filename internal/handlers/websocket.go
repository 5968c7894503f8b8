package handlers

import (
	"context"

	ws "cchat/internal/websocket"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return fail(c, fiber.StatusUpgradeRequired, "WebSocket upgrade required")
}

// WebSocket handles WebSocket connections
func (h *Handler) WebSocket(c *websocket.Conn) {
	// Set by the auth middleware
	uid, _ := c.Locals("userID").(string)

	client := ws.NewClient(uid, c, h.hub)
	h.hub.Register <- client

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.WritePump()
	client.ReadPump(ctx) // blocks until the connection closes
}

// WebSocketStats returns WebSocket connection statistics
func (h *Handler) WebSocketStats(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, fiber.Map{
		"connections": h.hub.ClientCount(),
	})
}
