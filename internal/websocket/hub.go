package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"cchat/internal/logger"
)

// ErrNotParticipant is returned when joining a conversation the user is
// not part of.
var ErrNotParticipant = errors.New("not a participant")

// Members resolves the participants of a conversation
type Members interface {
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
}

// Hub maintains the set of active clients and broadcasts messages to the
// clients that joined a conversation
type Hub struct {
	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	members Members
	metrics *Metrics
	logger  *slog.Logger

	// Mutex for thread-safe operations
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(members Members, metrics *Metrics, l *slog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		members:    members,
		metrics:    metrics,
		logger:     logger.Or(l).With("component", "hub"),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	h.metrics.Connections.Set(float64(len(h.clients)))
	h.logger.Debug("client connected", "user", client.UserID)
}

// unregisterClient removes a client and all of its room memberships
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for id := range client.rooms {
		h.leaveLocked(client, id)
	}
	close(client.Send)
	h.metrics.Connections.Set(float64(len(h.clients)))
	h.logger.Debug("client disconnected", "user", client.UserID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.metrics.Connections.Set(0)
	h.metrics.Rooms.Set(0)
}

// Join subscribes client to conversationID after checking membership
func (h *Hub) Join(ctx context.Context, client *Client, conversationID string) error {
	ids, err := h.members.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return err
	}
	allowed := false
	for _, id := range ids {
		if id == client.UserID {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrNotParticipant
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[client] = struct{}{}
	client.rooms[conversationID] = struct{}{}
	h.metrics.Rooms.Set(float64(len(h.rooms)))
	return nil
}

// Leave unsubscribes client from conversationID
func (h *Hub) Leave(client *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, conversationID)
}

func (h *Hub) leaveLocked(client *Client, conversationID string) {
	delete(client.rooms, conversationID)
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	h.metrics.Rooms.Set(float64(len(h.rooms)))
}

// BroadcastToConversation sends a message to every client that joined
// conversationID
func (h *Hub) BroadcastToConversation(conversationID string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[conversationID] {
		h.deliver(client, message.Type, data)
	}
}

// SendTo queues a message for a single client
func (h *Hub) SendTo(client *Client, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; ok {
		h.deliver(client, message.Type, data)
	}
}

func (h *Hub) deliver(client *Client, t EventType, data []byte) {
	select {
	case client.Send <- data:
		h.metrics.Frames.WithLabelValues(string(t)).Inc()
	default:
		h.metrics.Dropped.Inc()
		h.logger.Warn("send buffer full, dropping frame", "user", client.UserID, "type", t)
	}
}

// ClientCount returns the number of currently connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients joined to conversationID
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
