package realtime

import (
	"encoding/json"
	"time"

	"cchat/internal/models"
)

// FrameType names a frame on the realtime channel.
type FrameType string

const (
	// Server to client
	FrameNewMessage     FrameType = "new_message"
	FrameMessageDeleted FrameType = "message_deleted"
	FrameMessageEdited  FrameType = "message_edited"
	FrameError          FrameType = "error"

	// Client to server
	FrameJoinConversation  FrameType = "join_conversation"
	FrameLeaveConversation FrameType = "leave_conversation"
)

// Frame is the envelope of every realtime frame.
type Frame struct {
	Type      FrameType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// RoomPayload is the payload of join_conversation and leave_conversation.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// DeletedPayload is the payload of message_deleted.
type DeletedPayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

// ErrorPayload is the payload of error frames.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventKind classifies an Event.
type EventKind int

const (
	EventMessageCreated EventKind = iota + 1
	EventMessageDeleted
	EventMessageEdited
	EventAuthExpired
	// EventReconnected follows every successful redial; anything broadcast
	// while the channel was down is lost, so the owner should re-fetch.
	EventReconnected
	EventServerError
)

func (k EventKind) String() string {
	switch k {
	case EventMessageCreated:
		return "message_created"
	case EventMessageDeleted:
		return "message_deleted"
	case EventMessageEdited:
		return "message_edited"
	case EventAuthExpired:
		return "auth_expired"
	case EventReconnected:
		return "reconnected"
	case EventServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Event is a decoded, conversation-scoped realtime event.
type Event struct {
	Kind      EventKind
	Message   models.Message // created and edited
	MessageID string         // deleted
	Err       error          // auth expired and server errors
}

func encodeFrame(t FrameType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: t, Payload: raw, Timestamp: time.Now()})
}
