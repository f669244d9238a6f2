package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("gone")))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))

	// The code survives wrapping.
	wrapped := fmt.Errorf("handler: %w", Forbidden("nope"))
	assert.Equal(t, CodeForbidden, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeForbidden))
}

func TestUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("lookup user", cause)

	assert.True(t, Is(err, CodeUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "lookup user: connection refused", err.Error())
}
