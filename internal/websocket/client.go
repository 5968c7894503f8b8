package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client represents a WebSocket client connection
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte

	// rooms is guarded by Hub.mu
	rooms map[string]struct{}
}

// NewClient creates a new WebSocket client
func NewClient(userID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read error", "user", c.UserID, "error", err)
			}
			break
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.Hub.SendTo(c, NewMessage(EventError, ErrorPayload{Code: "BAD_FRAME", Message: "Invalid message format"}))
			continue
		}

		c.HandleIncoming(ctx, incoming)
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("write error", "user", c.UserID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleIncoming processes join and leave requests
func (c *Client) HandleIncoming(ctx context.Context, msg IncomingMessage) {
	var room RoomPayload
	if err := json.Unmarshal(msg.Payload, &room); err != nil || room.ConversationID == "" {
		c.Hub.SendTo(c, NewMessage(EventError, ErrorPayload{Code: "BAD_FRAME", Message: "conversationId is required"}))
		return
	}

	switch msg.Type {
	case EventJoinConversation:
		if err := c.Hub.Join(ctx, c, room.ConversationID); err != nil {
			code, text := "JOIN_FAILED", "Cannot join conversation"
			if errors.Is(err, ErrNotParticipant) {
				code, text = "FORBIDDEN", "You are not a participant of this conversation"
			}
			c.Hub.SendTo(c, NewMessage(EventError, ErrorPayload{Code: code, Message: text}))
		}
	case EventLeaveConversation:
		c.Hub.Leave(c, room.ConversationID)
	default:
		c.Hub.logger.Debug("unknown message type", "type", msg.Type)
	}
}
