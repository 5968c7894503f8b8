package database

import (
	"context"
	"errors"
	"time"

	"cchat/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

// Store is the persistence layer of the reference backend.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, id, name string, avatar *string) (models.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	// SearchUsers lists users other than userID whose name or email
	// contains search. With directOnly, users that already share a direct
	// conversation with userID are left out.
	SearchUsers(ctx context.Context, userID, search string, directOnly bool) ([]models.UserRef, error)

	SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error
	OTP(ctx context.Context, email string) (code string, expiresAt time.Time, err error)
	DeleteOTP(ctx context.Context, email string) error

	// CreateConversation stores c with participantIDs. For direct
	// conversations an existing one between the same two users is
	// returned instead.
	CreateConversation(ctx context.Context, c models.Conversation, participantIDs []string) (models.Conversation, error)
	Conversation(ctx context.Context, id string) (models.Conversation, error)
	ConversationsFor(ctx context.Context, userID string) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)

	CreateMessage(ctx context.Context, m models.Message) (models.Message, error)
	Message(ctx context.Context, id string) (models.Message, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	UpdateMessage(ctx context.Context, id, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	Close() error
}

// IsParticipant reports whether userID belongs to conversationID.
func IsParticipant(ctx context.Context, s Store, conversationID, userID string) (bool, error) {
	ids, err := s.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}
