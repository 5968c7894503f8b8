package session

import (
	"testing"
	"time"

	"cchat/internal/logger"
	"cchat/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("whatever"))
	require.NoError(t, err)
	return tok
}

func TestInitEmptyStore(t *testing.T) {
	s, err := Init(NewMemoryStore(), logger.Discard())
	require.NoError(t, err)
	assert.False(t, s.Authenticated())
	assert.Equal(t, "", s.UserID())
	assert.True(t, s.Expired(time.Now()))
}

func TestAuthenticatePersistsAndRestores(t *testing.T) {
	store := NewMemoryStore()
	s, err := Init(store, logger.Discard())
	require.NoError(t, err)

	require.NoError(t, s.Authenticate("tok", models.UserResponse{ID: "u1", Name: "Jane Doe"}))
	s.SetActive("c1")

	restored, err := Init(store, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "tok", restored.Token())
	assert.Equal(t, "u1", restored.UserID())
	assert.Equal(t, "Jane Doe", restored.Ref().Name)
	assert.Equal(t, "", restored.Active())
}

func TestTokenWithoutUserStillSignedIn(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(keyToken, []byte("tok")))
	require.NoError(t, store.Set(keyUser, []byte("{not json")))

	s, err := Init(store, logger.Discard())
	require.NoError(t, err)
	assert.True(t, s.Authenticated())
	_, ok := s.User()
	assert.False(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	store := NewMemoryStore()
	s, _ := Init(store, logger.Discard())
	require.NoError(t, s.Authenticate("tok", models.UserResponse{ID: "u1"}))
	s.SetActive("c1")

	require.NoError(t, s.Logout())
	assert.False(t, s.Authenticated())
	assert.Equal(t, "", s.Active())
	_, err := store.Get(keyToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(keyUser)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	s, _ := Init(NewMemoryStore(), logger.Discard())

	require.NoError(t, s.Authenticate(signed(t, now.Add(time.Hour)), models.UserResponse{ID: "u1"}))
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(2*time.Hour)))

	require.NoError(t, s.Authenticate("opaque-token", models.UserResponse{ID: "u1"}))
	assert.False(t, s.Expired(now), "non-JWT credentials are left to the server")
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenPebble(dir)
	require.NoError(t, err)

	s, err := Init(store, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Authenticate("tok", models.UserResponse{ID: "u1", Email: "jane@example.com"}))
	require.NoError(t, store.Close())

	store, err = OpenPebble(dir)
	require.NoError(t, err)
	defer store.Close()

	restored, err := Init(store, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "tok", restored.Token())
	u, ok := restored.User()
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", u.Email)

	require.NoError(t, restored.Logout())
	_, err = store.Get(keyToken)
	assert.ErrorIs(t, err, ErrNotFound)
}
