package api

import (
	"context"
	"net/http"
	"net/url"

	"cchat/internal/models"
)

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordRequest represents reset password request body
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// UpdateProfileRequest represents profile update request body
type UpdateProfileRequest struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, http.MethodPost, "auth/register", nil, req, &out)
	return out, err
}

// Login exchanges email and password for a credential.
func (c *Client) Login(ctx context.Context, req LoginRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, http.MethodPost, "auth/login", nil, req, &out)
	return out, err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (models.UserResponse, error) {
	var out models.UserResponse
	err := c.do(ctx, http.MethodGet, "auth/me", nil, nil, &out)
	return out, err
}

// ForgotPassword asks the server to issue a one-time code for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "auth/forgot-password", nil, map[string]string{"email": email}, nil)
}

// VerifyOTP checks a one-time code without consuming it.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) error {
	return c.do(ctx, http.MethodPost, "auth/verify-otp", nil, map[string]string{"email": email, "otp": otp}, nil)
}

// ResetPassword sets a new password using a one-time code.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.do(ctx, http.MethodPost, "auth/reset-password", nil, req, nil)
}

// SearchUsers lists users userID can start a conversation with. fetchType
// is "direct" or "group".
func (c *Client) SearchUsers(ctx context.Context, userID, fetchType, search string) ([]models.UserRef, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("fetchType", fetchType)
	q.Set("search", search)
	var out []models.UserRef
	err := c.do(ctx, http.MethodGet, "users/user", q, nil, &out)
	return out, err
}

// UpdateProfile changes the user's name and avatar.
func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (models.UserResponse, error) {
	var out models.UserResponse
	err := c.do(ctx, http.MethodPost, "users/user", nil, req, &out)
	return out, err
}

// Conversations lists every conversation userID participates in.
func (c *Client) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	q := url.Values{}
	q.Set("userId", userID)
	var out []models.Conversation
	err := c.do(ctx, http.MethodGet, "conversations/conversation", q, nil, &out)
	return out, err
}

// CreateConversation creates a direct or group conversation.
func (c *Client) CreateConversation(ctx context.Context, req models.CreateConversationRequest) (models.Conversation, error) {
	var out models.Conversation
	err := c.do(ctx, http.MethodPost, "conversations/conversation", nil, req, &out)
	return out, err
}

// ownerBody is the body of the delete calls.
type ownerBody struct {
	UserID string `json:"userId"`
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "conversations/"+url.PathEscape(id), nil, ownerBody{UserID: c.userID()}, nil)
}

// Messages fetches the history of a conversation.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	q := url.Values{}
	q.Set("userId", c.userID())
	var out []models.Message
	err := c.do(ctx, http.MethodGet, "messages/"+url.PathEscape(conversationID), q, nil, &out)
	return out, err
}

// SendMessage posts a message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, http.MethodPost, "messages", nil, req, &out)
	return out, err
}

// EditMessage replaces the content of a message.
func (c *Client) EditMessage(ctx context.Context, id string, req models.EditMessageRequest) (models.Message, error) {
	if req.UserID == "" {
		req.UserID = c.userID()
	}
	var out models.Message
	err := c.do(ctx, http.MethodPut, "messages/"+url.PathEscape(id), nil, req, &out)
	return out, err
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "messages/"+url.PathEscape(id), nil, ownerBody{UserID: c.userID()}, nil)
}
