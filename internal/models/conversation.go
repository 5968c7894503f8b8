package models

import "time"

// ConversationType is either direct or group
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation represents a direct or group thread
type Conversation struct {
	ID           string           `json:"id" db:"id"`
	Type         ConversationType `json:"type" db:"type"`
	Name         string           `json:"name,omitempty" db:"name"`
	Avatar       *string          `json:"avatar,omitempty" db:"avatar"`
	Participants []UserRef        `json:"participants"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	CreatedBy    string           `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt    time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time        `json:"updatedAt" db:"updated_at"`
}

// LastActivity is the last message time, falling back to creation time
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Other returns the first participant that is not userID
func (c *Conversation) Other(userID string) (UserRef, bool) {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return UserRef{}, false
}

// CreateConversationRequest is the body of POST /conversations/conversation.
// Direct conversations send SenderID and ReceiverID; groups send the rest.
type CreateConversationRequest struct {
	SenderID     string           `json:"senderId,omitempty"`
	ReceiverID   string           `json:"receiverId,omitempty"`
	Type         ConversationType `json:"type,omitempty"`
	Name         string           `json:"name,omitempty"`
	Participants []string         `json:"participants,omitempty"`
	Avatar       *string          `json:"avatar,omitempty"`
	CreatedBy    string           `json:"createdBy,omitempty"`
}
