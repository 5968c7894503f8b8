// Package conversations maintains the home screen's conversation list,
// split into direct and group buckets.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cchat/internal/apperr"
	"cchat/internal/logger"
	"cchat/internal/models"
	"cchat/internal/upload"
	"cchat/internal/validation"
)

// Backend is the part of the REST client the aggregator uses.
type Backend interface {
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, req models.CreateConversationRequest) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// UserSource yields the signed-in user's id.
type UserSource interface {
	UserID() string
}

// ErrNotSignedIn is returned when no user is available.
var ErrNotSignedIn = apperr.Expired(0, errors.New("not signed in"))

// Buckets is the conversation list partitioned by type. Each bucket is
// ordered by last activity, newest first.
type Buckets struct {
	Direct []models.Conversation
	Group  []models.Conversation
}

// Len returns the total number of conversations.
func (b Buckets) Len() int { return len(b.Direct) + len(b.Group) }

// Partition splits convs by type and orders each bucket by last message
// time, falling back to creation time.
func Partition(convs []models.Conversation) Buckets {
	b := Buckets{Direct: []models.Conversation{}, Group: []models.Conversation{}}
	for _, c := range convs {
		switch c.Type {
		case models.ConversationDirect:
			b.Direct = append(b.Direct, c)
		case models.ConversationGroup:
			b.Group = append(b.Group, c)
		}
	}
	byActivity := func(list []models.Conversation) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].LastActivity().After(list[j].LastActivity())
		})
	}
	byActivity(b.Direct)
	byActivity(b.Group)
	return b
}

// Aggregator fetches and caches the conversation list.
type Aggregator struct {
	api      Backend
	users    UserSource
	uploader upload.Uploader
	logger   *slog.Logger

	mu   sync.RWMutex
	last Buckets
}

// New creates an aggregator. uploader is used for group avatars and may be nil.
func New(api Backend, users UserSource, uploader upload.Uploader, l *slog.Logger) *Aggregator {
	return &Aggregator{
		api:      api,
		users:    users,
		uploader: uploader,
		logger:   logger.Or(l).With("component", "conversations"),
		last:     Partition(nil),
	}
}

// Fetch reloads the list. On failure the previous buckets are returned
// together with the error.
func (a *Aggregator) Fetch(ctx context.Context) (Buckets, error) {
	userID := a.users.UserID()
	if userID == "" {
		return a.Last(), ErrNotSignedIn
	}

	convs, err := a.api.Conversations(ctx, userID)
	if err != nil {
		a.logger.Warn("fetch conversations", "error", err)
		return a.Last(), err
	}

	b := Partition(convs)
	a.mu.Lock()
	a.last = b
	a.mu.Unlock()
	return b, nil
}

// Focus is called whenever the list becomes visible again; it always
// re-fetches so conversations created elsewhere appear.
func (a *Aggregator) Focus(ctx context.Context) (Buckets, error) {
	return a.Fetch(ctx)
}

// Last returns the most recently fetched buckets.
func (a *Aggregator) Last() Buckets {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// CreateDirect opens (or returns the existing) direct conversation with otherUserID.
func (a *Aggregator) CreateDirect(ctx context.Context, otherUserID string) (models.Conversation, error) {
	me := a.users.UserID()
	if me == "" {
		return models.Conversation{}, ErrNotSignedIn
	}
	if otherUserID == "" || otherUserID == me {
		return models.Conversation{}, apperr.Invalid("receiverId", "User information is missing")
	}

	c, err := a.api.CreateConversation(ctx, models.CreateConversationRequest{
		SenderID:   me,
		ReceiverID: otherUserID,
	})
	if err != nil {
		return models.Conversation{}, err
	}
	a.upsert(c)
	return c, nil
}

// CreateGroup creates a group with the signed-in user and participantIDs.
// An avatar path, if given, is uploaded first.
func (a *Aggregator) CreateGroup(ctx context.Context, name string, participantIDs []string, avatarPath string) (models.Conversation, error) {
	me := a.users.UserID()
	if me == "" {
		return models.Conversation{}, ErrNotSignedIn
	}

	others := make([]string, 0, len(participantIDs))
	seen := map[string]bool{me: true}
	for _, id := range participantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		others = append(others, id)
	}
	if err := validation.Group(name, others); err != nil {
		return models.Conversation{}, err
	}

	var avatar *string
	if avatarPath != "" {
		if a.uploader == nil {
			return models.Conversation{}, upload.ErrDisabled
		}
		url, err := a.uploader.Upload(ctx, avatarPath)
		if err != nil {
			return models.Conversation{}, fmt.Errorf("group avatar: %w", err)
		}
		avatar = &url
	}

	c, err := a.api.CreateConversation(ctx, models.CreateConversationRequest{
		Type:         models.ConversationGroup,
		Name:         name,
		Participants: append(others, me),
		Avatar:       avatar,
		CreatedBy:    me,
	})
	if err != nil {
		return models.Conversation{}, err
	}
	a.upsert(c)
	return c, nil
}

// Delete removes a conversation and drops it from the cached list.
func (a *Aggregator) Delete(ctx context.Context, id string) error {
	if err := a.api.DeleteConversation(ctx, id); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = Partition(without(append(append([]models.Conversation{}, a.last.Direct...), a.last.Group...), id))
	return nil
}

func (a *Aggregator) upsert(c models.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	all := without(append(append([]models.Conversation{}, a.last.Direct...), a.last.Group...), c.ID)
	a.last = Partition(append(all, c))
}

func without(list []models.Conversation, id string) []models.Conversation {
	out := make([]models.Conversation, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
