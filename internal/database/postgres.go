package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cchat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar        TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS password_otps (
	email      TEXT PRIMARY KEY,
	code       TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	name       TEXT,
	avatar     TEXT,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	position        INT NOT NULL,
	PRIMARY KEY (conversation_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL REFERENCES users(id),
	content         TEXT NOT NULL DEFAULT '',
	attachment      TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at);
`

const (
	userColumns    = `id, email, name, password_hash, avatar, created_at, updated_at`
	messageSelect  = `SELECT m.id, m.conversation_id, m.content, m.attachment, m.created_at, m.updated_at, u.id, u.name, u.avatar FROM messages m JOIN users u ON u.id = m.sender_id`
	convColumns    = `c.id, c.type, c.name, c.avatar, c.created_by, c.created_at, c.updated_at`
	searchLimit    = 50
	pgUniqueViol   = "23505"
	pgForeignKeyVi = "23503"
)

// SQLStore is the Postgres store, used through pgx's database/sql driver.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to Postgres.
func Open(ctx context.Context, databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an open handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Migrate creates missing tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Close() error { return s.db.Close() }

// mapErr translates driver errors into store errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViol:
			return ErrConflict
		case pgForeignKeyVi:
			return ErrNotFound
		}
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Password, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return models.User{}, mapErr(err)
	}
	u.Avatar = nullable(avatar)
	return u, nil
}

func scanMessage(row scanner) (models.Message, error) {
	var m models.Message
	var attachment, senderAvatar sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Content, &attachment, &m.CreatedAt, &m.UpdatedAt,
		&m.Sender.ID, &m.Sender.Name, &senderAvatar); err != nil {
		return models.Message{}, mapErr(err)
	}
	m.Attachment = nullable(attachment)
	m.Sender.Avatar = nullable(senderAvatar)
	return m, nil
}

func scanConversation(row scanner) (models.Conversation, error) {
	var c models.Conversation
	var name, avatar, createdBy sql.NullString
	if err := row.Scan(&c.ID, &c.Type, &name, &avatar, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Conversation{}, mapErr(err)
	}
	c.Name = name.String
	c.Avatar = nullable(avatar)
	c.CreatedBy = createdBy.String
	return c, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.Password, u.Avatar, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

func (s *SQLStore) UpdateProfile(ctx context.Context, id, name string, avatar *string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`UPDATE users SET name = $2, avatar = COALESCE($3, avatar), updated_at = $4 WHERE id = $1 RETURNING `+userColumns,
		id, name, avatar, s.now()))
}

func (s *SQLStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return affected(s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, s.now()))
}

func (s *SQLStore) SearchUsers(ctx context.Context, userID, search string, directOnly bool) ([]models.UserRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.avatar FROM users u
		WHERE u.id <> $1
		  AND ($2 = '' OR u.name ILIKE '%' || $2 || '%' OR u.email ILIKE '%' || $2 || '%')
		  AND (NOT $3 OR NOT EXISTS (
			SELECT 1 FROM conversations c
			JOIN conversation_participants a ON a.conversation_id = c.id AND a.user_id = $1
			JOIN conversation_participants b ON b.conversation_id = c.id AND b.user_id = u.id
			WHERE c.type = 'direct'))
		ORDER BY u.name
		LIMIT $4`, userID, strings.TrimSpace(search), directOnly, searchLimit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []models.UserRef{}
	for rows.Next() {
		var r models.UserRef
		var avatar sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &avatar); err != nil {
			return nil, err
		}
		r.Avatar = nullable(avatar)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_otps (email, code, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at`,
		strings.ToLower(email), code, expiresAt)
	return mapErr(err)
}

func (s *SQLStore) OTP(ctx context.Context, email string) (string, time.Time, error) {
	var code string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT code, expires_at FROM password_otps WHERE email = $1`,
		strings.ToLower(email)).Scan(&code, &expiresAt)
	if err != nil {
		return "", time.Time{}, mapErr(err)
	}
	return code, expiresAt, nil
}

func (s *SQLStore) DeleteOTP(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM password_otps WHERE email = $1`, strings.ToLower(email))
	return mapErr(err)
}

func (s *SQLStore) CreateConversation(ctx context.Context, c models.Conversation, participantIDs []string) (models.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	if c.Type == models.ConversationDirect && len(participantIDs) == 2 {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT c.id FROM conversations c
			JOIN conversation_participants a ON a.conversation_id = c.id AND a.user_id = $1
			JOIN conversation_participants b ON b.conversation_id = c.id AND b.user_id = $2
			WHERE c.type = 'direct' LIMIT 1`, participantIDs[0], participantIDs[1]).Scan(&existing)
		switch {
		case err == nil:
			if err := tx.Commit(); err != nil {
				return models.Conversation{}, err
			}
			return s.Conversation(ctx, existing)
		case !errors.Is(err, sql.ErrNoRows):
			return models.Conversation{}, err
		}
	}

	c.ID = uuid.NewString()
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	var name, createdBy *string
	if c.Name != "" {
		name = &c.Name
	}
	if c.CreatedBy != "" {
		createdBy = &c.CreatedBy
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, type, name, avatar, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Type, name, c.Avatar, createdBy, c.CreatedAt, c.UpdatedAt); err != nil {
		return models.Conversation{}, mapErr(err)
	}
	for i, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES ($1, $2, $3)`,
			c.ID, uid, i); err != nil {
			return models.Conversation{}, mapErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return s.Conversation(ctx, c.ID)
}

func (s *SQLStore) Conversation(ctx context.Context, id string) (models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, `SELECT `+convColumns+` FROM conversations c WHERE c.id = $1`, id))
	if err != nil {
		return models.Conversation{}, err
	}
	if err := s.fill(ctx, &c); err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}

// fill loads participants and the last message of c.
func (s *SQLStore) fill(ctx context.Context, c *models.Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.avatar FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 ORDER BY p.position`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.Participants = []models.UserRef{}
	for rows.Next() {
		var r models.UserRef
		var avatar sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &avatar); err != nil {
			return err
		}
		r.Avatar = nullable(avatar)
		c.Participants = append(c.Participants, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	last, err := scanMessage(s.db.QueryRowContext(ctx,
		messageSelect+` WHERE m.conversation_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT 1`, c.ID))
	switch {
	case err == nil:
		c.LastMessage = &last
	case errors.Is(err, ErrNotFound):
		c.LastMessage = nil
	default:
		return err
	}
	return nil
}

func (s *SQLStore) ConversationsFor(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+convColumns+` FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1 ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	out := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.fill(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id))
}

func (s *SQLStore) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY position`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return ids, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	m.ID = uuid.NewString()
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, attachment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.Sender.ID, m.Content, m.Attachment, now, now); err != nil {
		return models.Message{}, mapErr(err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, now); err != nil {
		return models.Message{}, err
	}
	return s.Message(ctx, m.ID)
}

func (s *SQLStore) Message(ctx context.Context, id string) (models.Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = $1`, id))
}

func (s *SQLStore) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+` WHERE m.conversation_id = $1 ORDER BY m.created_at, m.id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateMessage(ctx context.Context, id, content string) (models.Message, error) {
	if err := affected(s.db.ExecContext(ctx,
		`UPDATE messages SET content = $2, updated_at = $3 WHERE id = $1`, id, content, s.now())); err != nil {
		return models.Message{}, err
	}
	return s.Message(ctx, id)
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id))
}
