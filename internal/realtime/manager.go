// Package realtime owns the websocket channel of the active conversation.
//
// A Manager holds at most one Session. Opening a session for another
// conversation closes the previous one first, so leave is always sent
// before the next join.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cchat/internal/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultReconnectEvery = 2 * time.Second
	defaultReconnectBurst = 1
	eventBuffer           = 64
)

// Manager opens conversation sessions against one websocket endpoint.
type Manager struct {
	dialer Dialer
	url    string
	logger *slog.Logger

	reconnectEvery time.Duration
	reconnectBurst int

	openMu  sync.Mutex
	mu      sync.Mutex
	current *Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithReconnectPacing limits redials to one per every, allowing burst
// attempts back to back.
func WithReconnectPacing(every time.Duration, burst int) Option {
	return func(m *Manager) {
		m.reconnectEvery = every
		if burst > 0 {
			m.reconnectBurst = burst
		}
	}
}

// NewManager creates a manager dialing url with d.
func NewManager(d Dialer, url string, opts ...Option) *Manager {
	m := &Manager{
		dialer:         d,
		url:            url,
		reconnectEvery: defaultReconnectEvery,
		reconnectBurst: defaultReconnectBurst,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.Or(m.logger).With("component", "realtime")
	return m
}

// Open closes the current session, if any, then dials a new one for
// conversationID and joins it. The session lives until Close is called,
// ctx is cancelled, or the server rejects the credential.
func (m *Manager) Open(ctx context.Context, conversationID, token string) (*Session, error) {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	conn, err := m.dial(ctx, token)
	if err != nil {
		return nil, err
	}

	s := newSession(m, conversationID, token, conn)
	if err := s.join(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join conversation %s: %w", conversationID, err)
	}
	s.start(ctx)

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info("session opened", "conversation", conversationID)
	return s, nil
}

// Current returns the open session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the current session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}

func (m *Manager) dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return m.dialer.Dial(ctx, m.url, header)
}

func (m *Manager) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(m.reconnectEvery), m.reconnectBurst)
}

var _ Conn = (*websocket.Conn)(nil)
