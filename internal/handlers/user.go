package handlers

import (
	"strings"

	"cchat/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// UpdateProfileRequest represents profile update request body
type UpdateProfileRequest struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// SearchUsers lists users the caller can start a conversation with.
// fetchType "direct" leaves out users already in a direct conversation
// with the caller.
func (h *Handler) SearchUsers(c *fiber.Ctx) error {
	me := userID(c)
	if q := c.Query("userId"); q != "" && q != me {
		return fail(c, fiber.StatusForbidden, "Cannot search on behalf of another user")
	}

	fetchType := c.Query("fetchType", "direct")
	if fetchType != "direct" && fetchType != "group" {
		return fail(c, fiber.StatusBadRequest, "fetchType must be direct or group")
	}

	users, err := h.store.SearchUsers(c.UserContext(), me, c.Query("search"), fetchType == "direct")
	if err != nil {
		return h.storeError(c, err, "")
	}
	return ok(c, fiber.StatusOK, users)
}

// UpdateProfile changes the caller's name and avatar
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	me := userID(c)
	if req.UserID != "" && req.UserID != me {
		return fail(c, fiber.StatusForbidden, "Cannot update another user")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Profile(req.Name); err != nil {
		return invalid(c, err)
	}

	user, err := h.store.UpdateProfile(c.UserContext(), me, req.Name, req.Avatar)
	if err != nil {
		return h.storeError(c, err, "User not found")
	}
	return ok(c, fiber.StatusOK, user.ToResponse())
}
