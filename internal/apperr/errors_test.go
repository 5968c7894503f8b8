package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("send message: %w", Rejected(500, "boom"))

	assert.True(t, errors.Is(err, ServerRejected))
	assert.False(t, errors.Is(err, AuthExpired))
	assert.Equal(t, KindServerRejected, KindOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Network(cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "NETWORK_UNREACHABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidationFields(t *testing.T) {
	err := Validation(map[string]string{"password": "Password is required", "email": "Invalid email address"})

	assert.Equal(t, "Invalid email address", FieldMessage(err, "email"))
	assert.Equal(t, "", FieldMessage(err, "name"))
	assert.Equal(t, "VALIDATION_FAILED [email: Invalid email address; password: Password is required]", err.Error())
}
