// Package session is the signed-in user's context: the bearer credential,
// the user record and the conversation currently on screen. It is created
// once at start-up and passed to every component that needs it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cchat/internal/logger"
	"cchat/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	keyToken = "authToken"
	keyUser  = "userData"
)

// Session holds the credential and current user.
type Session struct {
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	token  string
	user   *models.UserResponse
	active string
}

// Init restores the persisted credential, if any. A token without a user
// record still counts as signed in.
func Init(store Store, l *slog.Logger) (*Session, error) {
	s := &Session{store: store, logger: logger.Or(l).With("component", "session")}

	token, err := store.Get(keyToken)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	s.token = string(token)

	raw, err := store.Get(keyUser)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	default:
		var u models.UserResponse
		if err := json.Unmarshal(raw, &u); err != nil {
			s.logger.Warn("discarding unreadable user record", "error", err)
		} else {
			s.user = &u
		}
	}
	return s, nil
}

// Authenticate stores a new credential and user.
func (s *Session) Authenticate(token string, user models.UserResponse) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Set(keyToken, []byte(token)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	if err := s.store.Set(keyUser, raw); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = &user
	s.mu.Unlock()
	s.logger.Info("signed in", "user", user.ID)
	return nil
}

// SetUser replaces the stored user record, e.g. after a profile update.
func (s *Session) SetUser(user models.UserResponse) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Set(keyUser, raw); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

// Logout clears persisted and in-memory state.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.active = ""
	s.mu.Unlock()

	errToken := s.store.Delete(keyToken)
	errUser := s.store.Delete(keyUser)
	if err := errors.Join(errToken, errUser); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

// Token returns the bearer credential, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// User returns the signed-in user.
func (s *Session) User() (models.UserResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.UserResponse{}, false
	}
	return *s.user, true
}

// UserID returns the signed-in user's id, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Ref returns the signed-in user as a message sender reference.
func (s *Session) Ref() models.UserRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.UserRef{}
	}
	return models.UserRef{ID: s.user.ID, Name: s.user.Name, Avatar: s.user.Avatar}
}

// Active returns the conversation currently on screen.
func (s *Session) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive records the conversation currently on screen.
func (s *Session) SetActive(conversationID string) {
	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()
}

// Expired reports whether the credential's exp claim is before now. The
// signature is not checked; the server remains the authority.
func (s *Session) Expired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
