package handlers

import (
	"strings"

	"cchat/internal/models"
	ws "cchat/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

// GetMessages returns the history of a conversation, oldest first. The
// conversation is a path parameter or the conversationId query.
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	conversationID := c.Params("conversationId", c.Query("conversationId"))
	if conversationID == "" {
		return fail(c, fiber.StatusBadRequest, "conversationId is required")
	}
	if allowed, err := h.requireParticipant(c, conversationID); !allowed {
		return err
	}

	msgs, err := h.store.Messages(c.UserContext(), conversationID)
	if err != nil {
		return h.storeError(c, err, "Conversation not found")
	}
	return ok(c, fiber.StatusOK, msgs)
}

// SendMessage stores a message and broadcasts it to the conversation
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	me := userID(c)
	if req.SenderID != "" && req.SenderID != me {
		return fail(c, fiber.StatusForbidden, "Cannot send as another user")
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Attachment != nil && *req.Attachment == "" {
		req.Attachment = nil
	}
	if req.Content == "" && req.Attachment == nil {
		return fail(c, fiber.StatusBadRequest, "Message cannot be empty")
	}
	if req.ConversationID == "" {
		return fail(c, fiber.StatusBadRequest, "conversationId is required")
	}
	if allowed, err := h.requireParticipant(c, req.ConversationID); !allowed {
		return err
	}

	msg, err := h.store.CreateMessage(c.UserContext(), models.Message{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Attachment:     req.Attachment,
		Sender:         models.UserRef{ID: me},
	})
	if err != nil {
		return h.storeError(c, err, "Conversation not found")
	}

	h.hub.BroadcastToConversation(msg.ConversationID, ws.NewMessage(ws.EventNewMessage, msg))
	return ok(c, fiber.StatusCreated, msg)
}

// loadOwn fetches a message and checks the caller sent it
func (h *Handler) loadOwn(c *fiber.Ctx, id string) (models.Message, bool, error) {
	msg, err := h.store.Message(c.UserContext(), id)
	if err != nil {
		return models.Message{}, false, h.storeError(c, err, "Message not found")
	}
	if msg.Sender.ID != userID(c) {
		return models.Message{}, false, fail(c, fiber.StatusForbidden, "You can only change your own messages")
	}
	return msg, true, nil
}

// EditMessage replaces the content of the caller's message
func (h *Handler) EditMessage(c *fiber.Ctx) error {
	var req models.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return fail(c, fiber.StatusBadRequest, "Message cannot be empty")
	}

	id := c.Params("id")
	if _, allowed, err := h.loadOwn(c, id); !allowed {
		return err
	}

	msg, err := h.store.UpdateMessage(c.UserContext(), id, req.Content)
	if err != nil {
		return h.storeError(c, err, "Message not found")
	}

	h.hub.BroadcastToConversation(msg.ConversationID, ws.NewMessage(ws.EventMessageEdited, msg))
	return ok(c, fiber.StatusOK, msg)
}

// DeleteMessage removes the caller's message
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	id := c.Params("id")
	msg, allowed, err := h.loadOwn(c, id)
	if !allowed {
		return err
	}

	if err := h.store.DeleteMessage(c.UserContext(), id); err != nil {
		return h.storeError(c, err, "Cannot delete message")
	}

	h.hub.BroadcastToConversation(msg.ConversationID, ws.NewMessage(ws.EventMessageDeleted, ws.DeletedPayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
	}))
	return done(c, "Message deleted")
}
