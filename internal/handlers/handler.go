package handlers

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"cchat/internal/apperr"
	"cchat/internal/database"
	"cchat/internal/logger"
	"cchat/internal/utils"
	ws "cchat/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

// Handler serves the REST and websocket endpoints
type Handler struct {
	store  database.Store
	hub    *ws.Hub
	tokens *utils.TokenManager
	logger *slog.Logger
	now    func() time.Time
}

// New creates a handler set
func New(store database.Store, hub *ws.Hub, tokens *utils.TokenManager, l *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		hub:    hub,
		tokens: tokens,
		logger: logger.Or(l).With("component", "handlers"),
		now:    time.Now,
	}
}

// userID returns the authenticated user set by the auth middleware
func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

func ok(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func done(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// invalid answers a validation error with its first field message
func invalid(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && len(appErr.Fields) > 0 {
		keys := make([]string, 0, len(appErr.Fields))
		for k := range appErr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fail(c, fiber.StatusBadRequest, appErr.Fields[keys[0]])
	}
	return fail(c, fiber.StatusBadRequest, "Invalid request")
}

// storeError maps a store error to a response, logging unexpected ones
func (h *Handler) storeError(c *fiber.Ctx, err error, notFound string) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fail(c, fiber.StatusNotFound, notFound)
	case errors.Is(err, database.ErrConflict):
		return fail(c, fiber.StatusConflict, "Already exists")
	default:
		h.logger.Error("database error", "path", c.Path(), "error", err)
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}
}

// requireParticipant answers 403 or 404 unless the caller belongs to
// conversationID. It returns a nil error and true when the caller may
// proceed.
func (h *Handler) requireParticipant(c *fiber.Ctx, conversationID string) (bool, error) {
	member, err := database.IsParticipant(c.UserContext(), h.store, conversationID, userID(c))
	if err != nil {
		return false, h.storeError(c, err, "Conversation not found")
	}
	if !member {
		return false, fail(c, fiber.StatusForbidden, "You are not a participant of this conversation")
	}
	return true, nil
}
