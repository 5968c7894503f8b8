package models

import (
	"strings"
	"time"
)

// Message represents a chat message
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversationId" db:"conversation_id"`
	Content        string    `json:"content" db:"content"`
	Attachment     *string   `json:"attachment,omitempty" db:"attachment"` // Hosted URL once confirmed
	Sender         UserRef   `json:"sender"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	// Derived on the client, never on the wire
	IsMe    bool `json:"-"`
	IsLocal bool `json:"-"`
}

// ShortTime renders CreatedAt as "3:04 PM" in loc (local time when nil)
func (m *Message) ShortTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return m.CreatedAt.In(loc).Format("3:04 PM")
}

// HasAttachment reports whether the message carries an attachment
func (m *Message) HasAttachment() bool {
	return m.Attachment != nil && *m.Attachment != ""
}

// Draft is a user composition that has not been sent yet.
// Attachment is a local file path until the upload succeeds.
type Draft struct {
	Content    string
	Attachment string
}

// Committable reports whether the draft has something to send
func (d Draft) Committable() bool {
	return strings.TrimSpace(d.Content) != "" || d.Attachment != ""
}

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	Attachment     *string `json:"attachment,omitempty"`
	SenderID       string  `json:"senderId"`
}

// EditMessageRequest is the body of PUT /messages/:id
type EditMessageRequest struct {
	Content string `json:"content"`
	UserID  string `json:"userId,omitempty"`
}
