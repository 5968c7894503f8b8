package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"cchat/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sqlNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db)
	s.now = func() time.Time { return sqlNow }
	return s, mock
}

var (
	messageCols = []string{"id", "conversation_id", "content", "attachment", "created_at", "updated_at", "sender_id", "sender_name", "sender_avatar"}
	convCols    = []string{"id", "type", "name", "avatar", "created_by", "created_at", "updated_at"}
)

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "a@b.co", "Ann", "hash", nil, sqlNow, sqlNow).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), &models.User{Email: "A@b.co", Name: "Ann", Password: "hash"})
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("a@b.co").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "avatar", "created_at", "updated_at"}))

	_, err := s.UserByEmail(context.Background(), "a@b.co")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessagesScansSender(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM messages m JOIN users u (.+) WHERE m.conversation_id").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m1", "c1", "hi", nil, sqlNow, sqlNow, "u1", "Ann", nil).
			AddRow("m2", "c1", "", "https://cdn.test/a.png", sqlNow, sqlNow, "u2", "Bob", "https://cdn.test/bob.png"))

	msgs, err := s.Messages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Ann", msgs[0].Sender.Name)
	assert.Nil(t, msgs[0].Attachment)
	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, "https://cdn.test/a.png", *msgs[1].Attachment)
	require.NotNil(t, msgs[1].Sender.Avatar)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsParticipant(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT user_id FROM conversation_participants").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	ok, err := IsParticipant(context.Background(), s, "c1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT user_id FROM conversation_participants").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	_, err = IsParticipant(context.Background(), s, "gone", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingMessage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM messages").WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteMessage(context.Background(), "m1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDirectConversationReusesExisting(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT c.id FROM conversations c").
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM conversations c WHERE c.id").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(convCols).AddRow("c1", "direct", nil, nil, nil, sqlNow, sqlNow))
	mock.ExpectQuery("SELECT u.id, u.name, u.avatar FROM conversation_participants").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "avatar"}).AddRow("u1", "Ann", nil).AddRow("u2", "Bob", nil))
	mock.ExpectQuery("SELECT (.+) FROM messages m").
		WithArgs("c1").
		WillReturnError(sql.ErrNoRows)

	c, err := s.CreateConversation(context.Background(), models.Conversation{Type: models.ConversationDirect}, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Len(t, c.Participants, 2)
	assert.Nil(t, c.LastMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroupUnknownParticipant(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO conversation_participants").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	_, err := s.CreateConversation(context.Background(),
		models.Conversation{Type: models.ConversationGroup, Name: "Team"}, []string{"ghost", "u1"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
