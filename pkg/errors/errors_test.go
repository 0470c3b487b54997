package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "SOME_CODE", http.StatusBadGateway, "upstream failed")

	assert.Equal(t, "upstream failed: boom", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestFromErrorPassesThroughTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrInvalidRefreshToken)

	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrInvalidRefreshToken.Code, got.Code)
	assert.Equal(t, http.StatusUnauthorized, got.Status)
}

func TestFromErrorNormalisesUnknownErrors(t *testing.T) {
	got := FromError(errors.New("driver: bad connection"))
	require.NotNil(t, got)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrInvalidCredentials, "invalid email or password")
	assert.Equal(t, ErrInvalidCredentials.Code, clone.Code)
	assert.Equal(t, ErrInvalidCredentials.Status, clone.Status)
	assert.NotSame(t, ErrInvalidCredentials, clone)
}
