package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cchat/internal/models"

	"github.com/google/uuid"
)

type otpEntry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore keeps everything in process memory. It backs the server
// when no database is configured and the handler tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[string]models.User
	emails        map[string]string
	otps          map[string]otpEntry
	conversations map[string]models.Conversation
	participants  map[string][]string
	messages      map[string]models.Message
	lastStamp     time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		users:         map[string]models.User{},
		emails:        map[string]string{},
		otps:          map[string]otpEntry{},
		conversations: map[string]models.Conversation{},
		participants:  map[string][]string{},
		messages:      map[string]models.Message{},
	}
}

func (s *MemoryStore) Close() error { return nil }

// stamp returns a strictly increasing timestamp so message order is stable.
func (s *MemoryStore) stamp() time.Time {
	now := s.now()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.emails[key]; ok {
		return ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	s.emails[key] = u.ID
	return nil
}

func (s *MemoryStore) UserByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return s.users[id], nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id, name string, avatar *string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	u.Name = name
	if avatar != nil {
		u.Avatar = avatar
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hash
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SearchUsers(_ context.Context, userID, search string, directOnly bool) ([]models.UserRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partners := map[string]bool{}
	if directOnly {
		for id, c := range s.conversations {
			if c.Type != models.ConversationDirect || !contains(s.participants[id], userID) {
				continue
			}
			for _, p := range s.participants[id] {
				partners[p] = true
			}
		}
	}

	search = strings.ToLower(strings.TrimSpace(search))
	out := []models.UserRef{}
	for _, u := range s.users {
		if u.ID == userID || partners[u.ID] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		out = append(out, u.Ref())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[strings.ToLower(email)] = otpEntry{code: code, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) OTP(_ context.Context, email string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.otps[strings.ToLower(email)]
	if !ok {
		return "", time.Time{}, ErrNotFound
	}
	return e.code, e.expiresAt, nil
}

func (s *MemoryStore) DeleteOTP(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.otps, strings.ToLower(email))
	return nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, c models.Conversation, participantIDs []string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range participantIDs {
		if _, ok := s.users[id]; !ok {
			return models.Conversation{}, ErrNotFound
		}
	}
	if c.Type == models.ConversationDirect {
		for id, existing := range s.conversations {
			if existing.Type == models.ConversationDirect && sameMembers(s.participants[id], participantIDs) {
				return s.conversationLocked(id), nil
			}
		}
	}

	c.ID = uuid.NewString()
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.conversations[c.ID] = c
	s.participants[c.ID] = append([]string(nil), participantIDs...)
	return s.conversationLocked(c.ID), nil
}

func (s *MemoryStore) conversationLocked(id string) models.Conversation {
	c := s.conversations[id]
	c.Participants = make([]models.UserRef, 0, len(s.participants[id]))
	for _, uid := range s.participants[id] {
		u := s.users[uid]
		c.Participants = append(c.Participants, u.Ref())
	}
	c.LastMessage = nil
	for _, m := range s.messages {
		if m.ConversationID != id {
			continue
		}
		if c.LastMessage == nil || m.CreatedAt.After(c.LastMessage.CreatedAt) {
			last := s.withSender(m)
			c.LastMessage = &last
		}
	}
	return c
}

func (s *MemoryStore) Conversation(_ context.Context, id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[id]; !ok {
		return models.Conversation{}, ErrNotFound
	}
	return s.conversationLocked(id), nil
}

func (s *MemoryStore) ConversationsFor(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Conversation{}
	for id := range s.conversations {
		if contains(s.participants[id], userID) {
			out = append(out, s.conversationLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity().After(out[j].LastActivity()) })
	return out, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.participants, id)
	for mid, m := range s.messages {
		if m.ConversationID == id {
			delete(s.messages, mid)
		}
	}
	return nil
}

func (s *MemoryStore) ParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.participants[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), ids...), nil
}

func (s *MemoryStore) withSender(m models.Message) models.Message {
	if u, ok := s.users[m.Sender.ID]; ok {
		m.Sender = u.Ref()
	}
	return m
}

func (s *MemoryStore) CreateMessage(_ context.Context, m models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return models.Message{}, ErrNotFound
	}
	m.ID = uuid.NewString()
	now := s.stamp()
	m.CreatedAt, m.UpdatedAt = now, now
	s.messages[m.ID] = m

	c := s.conversations[m.ConversationID]
	c.UpdatedAt = now
	s.conversations[m.ConversationID] = c
	return s.withSender(m), nil
}

func (s *MemoryStore) Message(_ context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	return s.withSender(m), nil
}

func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	out := []models.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, s.withSender(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, id, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	m.Content = content
	m.UpdatedAt = s.now()
	s.messages[id] = m
	return s.withSender(m), nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !contains(b, x) {
			return false
		}
	}
	return true
}
