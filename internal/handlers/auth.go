package handlers

import (
	"errors"
	"strings"

	"cchat/internal/database"
	"cchat/internal/models"
	"cchat/internal/utils"
	"cchat/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPRequest represents forgot-password and verify-otp request bodies
type OTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest represents reset password request body
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) issue(c *fiber.Ctx, status int, user models.User) error {
	token, err := h.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	return ok(c, status, models.AuthResult{Token: token, User: user.ToResponse()})
}

// Register handles user registration
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Register(req.Name, req.Email, req.Password, req.Password); err != nil {
		return invalid(c, err)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := models.User{Email: strings.ToLower(req.Email), Name: req.Name, Password: hash}
	if err := h.store.CreateUser(c.UserContext(), &user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return fail(c, fiber.StatusConflict, "Email already registered")
		}
		return h.storeError(c, err, "")
	}

	h.logger.Info("user registered", "user", user.ID)
	return h.issue(c, fiber.StatusCreated, user)
}

// Login handles user login. Wrong credentials answer 400 so clients do not
// mistake them for an expired session.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validation.Login(req.Email, req.Password); err != nil {
		return invalid(c, err)
	}

	user, err := h.store.UserByEmail(c.UserContext(), strings.TrimSpace(req.Email))
	if errors.Is(err, database.ErrNotFound) || (err == nil && !utils.CheckPassword(user.Password, req.Password)) {
		return fail(c, fiber.StatusBadRequest, "Invalid email or password")
	}
	if err != nil {
		return h.storeError(c, err, "")
	}

	return h.issue(c, fiber.StatusOK, user)
}

// GetMe returns current authenticated user
func (h *Handler) GetMe(c *fiber.Ctx) error {
	user, err := h.store.UserByID(c.UserContext(), userID(c))
	if err != nil {
		return h.storeError(c, err, "User not found")
	}
	return ok(c, fiber.StatusOK, user.ToResponse())
}

// ForgotPassword issues a one-time code. The response does not reveal
// whether the email is registered.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validation.Email(req.Email); err != nil {
		return invalid(c, err)
	}

	const sent = "If the email is registered, a verification code was sent"
	if _, err := h.store.UserByEmail(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return done(c, sent)
		}
		return h.storeError(c, err, "")
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate code")
	}
	if err := h.store.SaveOTP(c.UserContext(), req.Email, code, h.now().Add(utils.OTPTTL)); err != nil {
		return h.storeError(c, err, "")
	}

	// No mail transport; the code is only logged.
	h.logger.Info("password reset code issued", "email", req.Email, "otp", code)
	return done(c, sent)
}

func (h *Handler) checkOTP(c *fiber.Ctx, email, otp string) (bool, error) {
	code, expiresAt, err := h.store.OTP(c.UserContext(), email)
	if errors.Is(err, database.ErrNotFound) || (err == nil && (code != otp || h.now().After(expiresAt))) {
		return false, fail(c, fiber.StatusBadRequest, "Invalid or expired code")
	}
	if err != nil {
		return false, h.storeError(c, err, "")
	}
	return true, nil
}

// VerifyOTP checks a one-time code without consuming it
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validation.OTP(req.Email, req.OTP); err != nil {
		return invalid(c, err)
	}
	if valid, err := h.checkOTP(c, req.Email, req.OTP); !valid {
		return err
	}
	return done(c, "Code verified")
}

// ResetPassword sets a new password using a one-time code
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validation.OTP(req.Email, req.OTP); err != nil {
		return invalid(c, err)
	}
	if err := validation.ResetPassword(req.NewPassword, req.NewPassword); err != nil {
		return invalid(c, err)
	}
	if valid, err := h.checkOTP(c, req.Email, req.OTP); !valid {
		return err
	}

	user, err := h.store.UserByEmail(c.UserContext(), req.Email)
	if err != nil {
		return h.storeError(c, err, "User not found")
	}
	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}
	if err := h.store.UpdatePassword(c.UserContext(), user.ID, hash); err != nil {
		return h.storeError(c, err, "User not found")
	}
	if err := h.store.DeleteOTP(c.UserContext(), req.Email); err != nil {
		h.logger.Warn("failed to delete used code", "error", err)
	}
	return done(c, "Password updated")
}
