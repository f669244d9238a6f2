package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionManager(t *testing.T) (*SessionManager, *database.MemSpeaksetRepository) {
	t.Helper()
	db := database.NewMemSpeaksetRepository()
	return NewSessionManager(testutil.TestLogger(t), db, time.Hour), db
}

func TestRegister(t *testing.T) {
	sm, _ := newSessionManager(t)

	user, err := sm.Register("  alex  ", "speakset-dev")
	require.NoError(t, err)
	assert.Equal(t, "alex", user.Username, "username must be trimmed")
	assert.NotZero(t, user.Id)
}

func TestRegister_validation(t *testing.T) {
	sm, _ := newSessionManager(t)

	tt := []struct {
		name     string
		username string
		password string
		code     apperr.Code
	}{
		{"empty username", "   ", "longenough", apperr.CodeValidation},
		{"short password", "alex", "short", apperr.CodeValidation},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sm.Register(tc.username, tc.password)
			assert.True(t, apperr.Is(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}
}

func TestRegister_duplicateUsername(t *testing.T) {
	sm, _ := newSessionManager(t)

	_, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)

	// Uniqueness is case-insensitive.
	_, err = sm.Register("Alex", "speakset-dev")
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "expected conflict, got %v", err)
}

func TestLogin(t *testing.T) {
	sm, _ := newSessionManager(t)

	user, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)

	session, got, err := sm.Login("alex", "speakset-dev")
	require.NoError(t, err)
	assert.Equal(t, user.Id, got.Id)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.ExpiresAt.After(session.IssuedAt))

	userId, err := sm.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.Id, userId)
}

func TestLogin_badCredentials(t *testing.T) {
	sm, _ := newSessionManager(t)

	_, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)

	// Unknown user and wrong password produce the same error.
	_, _, unknownErr := sm.Login("nobody", "speakset-dev")
	_, _, wrongErr := sm.Login("alex", "not-the-password")

	assert.True(t, apperr.Is(unknownErr, apperr.CodeInvalidCredentials))
	assert.True(t, apperr.Is(wrongErr, apperr.CodeInvalidCredentials))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestValidate_expiredToken(t *testing.T) {
	sm, db := newSessionManager(t)

	_, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)
	session, _, err := sm.Login("alex", "speakset-dev")
	require.NoError(t, err)

	sm.now = func() time.Time { return session.ExpiresAt.Add(time.Second) }

	_, err = sm.Validate(session.Token)
	assert.True(t, apperr.Is(err, apperr.CodeSessionInvalid), "expected session invalid, got %v", err)

	// The expired session was deleted on sight.
	_, err = db.GetSession(session.Token)
	assert.ErrorIs(t, err, database.ErrNoRows)
}

func TestValidate_unknownToken(t *testing.T) {
	sm, _ := newSessionManager(t)

	_, err := sm.Validate("no-such-token")
	assert.True(t, apperr.Is(err, apperr.CodeSessionInvalid))

	_, err = sm.Validate("")
	assert.True(t, apperr.Is(err, apperr.CodeSessionInvalid))
}

func TestLogout(t *testing.T) {
	sm, _ := newSessionManager(t)

	_, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)
	session, _, err := sm.Login("alex", "speakset-dev")
	require.NoError(t, err)

	require.NoError(t, sm.Logout(session.Token))

	_, err = sm.Validate(session.Token)
	assert.True(t, apperr.Is(err, apperr.CodeSessionInvalid), "token must be unusable after logout")

	// Logging out twice is fine.
	assert.NoError(t, sm.Logout(session.Token))
}

func TestLogin_databaseUnavailable(t *testing.T) {
	mockDb := &database.MockSpeaksetRepository{}
	mockDb.On("GetUserByUsername", "alex").Return(database.User{}, errors.New("connection refused"))

	sm := NewSessionManager(testutil.TestLogger(t), mockDb, time.Hour)

	_, _, err := sm.Login("alex", "speakset-dev")
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable), "db failures must not look like bad credentials")
	mockDb.AssertExpectations(t)
}

func TestDeleteExpiredSessionsSweep(t *testing.T) {
	sm, db := newSessionManager(t)

	_, err := sm.Register("alex", "speakset-dev")
	require.NoError(t, err)
	session, _, err := sm.Login("alex", "speakset-dev")
	require.NoError(t, err)

	n, err := db.DeleteExpiredSessions(session.ExpiresAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
