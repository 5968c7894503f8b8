package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"cchat/internal/apperr"
	"cchat/internal/models"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Session is the channel bound to one conversation.
//
// A single goroutine reads frames, decodes them into Events and redials
// when the connection drops. Writes (join and leave) are serialized by
// writeMu.
type Session struct {
	m              *Manager
	conversationID string
	token          string
	logger         *slog.Logger
	limiter        *rate.Limiter

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    Conn
	closed  bool

	events    chan Event
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSession(m *Manager, conversationID, token string, conn Conn) *Session {
	return &Session{
		m:              m,
		conversationID: conversationID,
		token:          token,
		logger:         m.logger.With("conversation", conversationID),
		limiter:        m.newLimiter(),
		conn:           conn,
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
	}
}

// ConversationID returns the conversation the session is bound to.
func (s *Session) ConversationID() string { return s.conversationID }

// Events delivers decoded events. It is closed once the session ends.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session has released its connection.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.cancel = cancel
	stop := context.AfterFunc(parent, func() { s.Close() })
	go func() {
		defer stop()
		s.run(ctx)
	}()
}

// Close sends leave, closes the connection and waits for the reader to exit.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			if err := s.write(conn, FrameLeaveConversation, RoomPayload{ConversationID: s.conversationID}); err != nil {
				s.logger.Debug("leave not delivered", "error", err)
			}
			conn.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.m.release(s)
		s.logger.Info("session closed")
	})
	if s.cancel != nil {
		<-s.done
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) join() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return s.write(conn, FrameJoinConversation, RoomPayload{ConversationID: s.conversationID})
}

func (s *Session) write(conn Conn, t FrameType, payload any) error {
	data, err := encodeFrame(t, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperr.Network(err)
	}
	return nil
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		err := s.readLoop(ctx, conn)
		if s.isClosed() || ctx.Err() != nil {
			return
		}
		s.logger.Warn("connection lost, reconnecting", "error", err)
		conn.Close()

		if !s.reconnect(ctx) {
			return
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := s.decode(data)
		if !ok {
			continue
		}
		s.emit(ctx, ev)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// reconnect redials until it succeeds, the session is closed, or the
// credential is rejected. It reports whether reading should resume.
func (s *Session) reconnect(ctx context.Context) bool {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return false
		}
		if s.isClosed() {
			return false
		}

		conn, err := s.m.dial(ctx, s.token)
		if err != nil {
			if errors.Is(err, apperr.AuthExpired) {
				s.logger.Warn("credential rejected on redial")
				s.mu.Lock()
				s.closed = true
				s.conn = nil
				s.mu.Unlock()
				s.emit(ctx, Event{Kind: EventAuthExpired, Err: err})
				return false
			}
			if ctx.Err() != nil {
				return false
			}
			s.logger.Warn("reconnect failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return false
		}
		s.conn = conn
		s.mu.Unlock()

		if err := s.join(); err != nil {
			s.logger.Warn("rejoin failed", "error", err)
			conn.Close()
			continue
		}
		s.logger.Info("reconnected")
		s.emit(ctx, Event{Kind: EventReconnected})
		return true
	}
}

func (s *Session) decode(data []byte) (Event, bool) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("malformed frame", "error", err)
		return Event{}, false
	}

	switch f.Type {
	case FrameNewMessage, FrameMessageEdited:
		var m models.Message
		if err := json.Unmarshal(f.Payload, &m); err != nil || m.ID == "" {
			s.logger.Warn("malformed message payload", "type", f.Type)
			return Event{}, false
		}
		if !s.mine(m.ConversationID) {
			return Event{}, false
		}
		kind := EventMessageCreated
		if f.Type == FrameMessageEdited {
			kind = EventMessageEdited
		}
		return Event{Kind: kind, Message: m}, true

	case FrameMessageDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil || p.ID == "" {
			s.logger.Warn("malformed delete payload")
			return Event{}, false
		}
		if !s.mine(p.ConversationID) {
			return Event{}, false
		}
		return Event{Kind: EventMessageDeleted, MessageID: p.ID}, true

	case FrameError:
		var p ErrorPayload
		_ = json.Unmarshal(f.Payload, &p)
		s.logger.Warn("server error frame", "code", p.Code, "message", p.Message)
		return Event{Kind: EventServerError, Err: apperr.Rejected(0, p.Message)}, true

	default:
		s.logger.Debug("ignoring frame", "type", f.Type)
		return Event{}, false
	}
}

// An empty conversation id is accepted, the server only routes room frames.
func (s *Session) mine(conversationID string) bool {
	return conversationID == "" || conversationID == s.conversationID
}
