package handlers

import (
	"strings"

	"cchat/internal/models"
	"cchat/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetConversations lists the caller's conversations, most recent first
func (h *Handler) GetConversations(c *fiber.Ctx) error {
	me := userID(c)
	if q := c.Query("userId"); q != "" && q != me {
		return fail(c, fiber.StatusForbidden, "Cannot list another user's conversations")
	}

	list, err := h.store.ConversationsFor(c.UserContext(), me)
	if err != nil {
		return h.storeError(c, err, "")
	}
	return ok(c, fiber.StatusOK, list)
}

// CreateConversation creates a direct conversation (senderId and
// receiverId) or a group (type "group"). An existing direct conversation
// between the same users is returned as is.
func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	var req models.CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	me := userID(c)

	var (
		conv         models.Conversation
		participants []string
	)
	if req.Type == models.ConversationGroup {
		others := make([]string, 0, len(req.Participants))
		seen := map[string]bool{me: true}
		for _, id := range req.Participants {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			others = append(others, id)
		}
		if err := validation.Group(req.Name, others); err != nil {
			return invalid(c, err)
		}
		conv = models.Conversation{
			Type:      models.ConversationGroup,
			Name:      strings.TrimSpace(req.Name),
			Avatar:    req.Avatar,
			CreatedBy: me,
		}
		participants = append([]string{me}, others...)
	} else {
		if req.SenderID != "" && req.SenderID != me {
			return fail(c, fiber.StatusForbidden, "Cannot create a conversation for another user")
		}
		if req.ReceiverID == "" || req.ReceiverID == me {
			return fail(c, fiber.StatusBadRequest, "User information is missing")
		}
		conv = models.Conversation{Type: models.ConversationDirect, CreatedBy: me}
		participants = []string{me, req.ReceiverID}
	}

	created, err := h.store.CreateConversation(c.UserContext(), conv, participants)
	if err != nil {
		return h.storeError(c, err, "User not found")
	}
	return ok(c, fiber.StatusCreated, created)
}

// DeleteConversation removes a conversation the caller belongs to
func (h *Handler) DeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if allowed, err := h.requireParticipant(c, id); !allowed {
		return err
	}
	if err := h.store.DeleteConversation(c.UserContext(), id); err != nil {
		return h.storeError(c, err, "Conversation not found")
	}
	return done(c, "Conversation deleted")
}
