package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestFromDomainError(t *testing.T) {
	tt := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid credentials", apperr.InvalidCredentials("nope"), http.StatusUnauthorized},
		{"session invalid", apperr.SessionInvalid("expired"), http.StatusUnauthorized},
		{"forbidden", apperr.Forbidden("not yours"), http.StatusForbidden},
		{"not found", apperr.NotFound("gone"), http.StatusNotFound},
		{"validation", apperr.Validation("bad input"), http.StatusBadRequest},
		{"conflict", apperr.Conflict("taken"), http.StatusConflict},
		{"unavailable", apperr.Unavailable("db", errors.New("down")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := fromDomainError(tc.err)
			assert.Equal(t, tc.wantStatus, got.StatusCode)
		})
	}
}

func TestFromDomainError_keepsMessage(t *testing.T) {
	got := fromDomainError(apperr.NotFound("no space with that invite"))
	assert.Equal(t, "no space with that invite", got.Message)

	// Internal causes never leak to the client.
	got = fromDomainError(errors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", got.Message)
}
