// Package auth issues and validates opaque session tokens. Tokens carry
// no claims; every validation is a server-side lookup.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/types"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	tokenBytes        = 32
	sweepInterval     = 10 * time.Minute
)

type SessionManager struct {
	db  database.SpeaksetRepository
	log *log.Logger
	ttl time.Duration
	// now is swappable so expiry can be tested without sleeping.
	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

func NewSessionManager(logger *log.Logger, db database.SpeaksetRepository, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		db:   db,
		log:  logger,
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register creates a user with an Argon2id password hash. Usernames are
// unique case-insensitively.
func (sm *SessionManager) Register(username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.User{}, apperr.Validation("username is required")
	}
	if len(password) < 8 {
		return types.User{}, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := sm.db.CreateUser(database.CreateUserParams{
		Username:     username,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.User{}, apperr.Conflict("username is taken")
		}
		return types.User{}, apperr.Unavailable("create user", err)
	}

	return types.User{
		Id:        user.Id,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}, nil
}

// Login verifies credentials and issues a session. Unknown users and bad
// passwords are indistinguishable to the caller.
func (sm *SessionManager) Login(username, password string) (database.Session, types.User, error) {
	user, err := sm.db.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return database.Session{}, types.User{}, apperr.InvalidCredentials("invalid username or password")
		}
		return database.Session{}, types.User{}, apperr.Unavailable("lookup user", err)
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return database.Session{}, types.User{}, apperr.InvalidCredentials("invalid username or password")
	}

	token, err := generateToken()
	if err != nil {
		return database.Session{}, types.User{}, fmt.Errorf("generate token: %w", err)
	}

	now := sm.now().UTC()
	session := database.Session{
		Token:     token,
		UserId:    user.Id,
		IssuedAt:  now,
		ExpiresAt: now.Add(sm.ttl),
	}
	if err := sm.db.CreateSession(session); err != nil {
		return database.Session{}, types.User{}, apperr.Unavailable("create session", err)
	}

	return session, types.User{
		Id:        user.Id,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}, nil
}

// Validate resolves a token to a user id. Expired tokens are deleted on
// sight so a request at expiry+1 can never see a stale success.
func (sm *SessionManager) Validate(token string) (int, error) {
	if token == "" {
		return 0, apperr.SessionInvalid("missing session token")
	}

	session, err := sm.db.GetSession(token)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return 0, apperr.SessionInvalid("unknown session token")
		}
		return 0, apperr.Unavailable("lookup session", err)
	}

	if !sm.now().UTC().Before(session.ExpiresAt) {
		if err := sm.db.DeleteSession(token); err != nil {
			sm.log.Println("delete expired session:", err)
		}
		return 0, apperr.SessionInvalid("session expired")
	}

	return session.UserId, nil
}

// Logout revokes a token. Revoking an unknown token is not an error.
func (sm *SessionManager) Logout(token string) error {
	if err := sm.db.DeleteSession(token); err != nil {
		return apperr.Unavailable("delete session", err)
	}
	return nil
}

// Run sweeps expired sessions periodically until Shutdown.
func (sm *SessionManager) Run() {
	go func() {
		defer close(sm.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := sm.db.DeleteExpiredSessions(sm.now().UTC())
				if err != nil {
					sm.log.Println("sweep sessions:", err)
					continue
				}
				if n > 0 {
					sm.log.Printf("reaped %d expired sessions", n)
				}
			case <-sm.stop:
				return
			}
		}
	}()
}

func (sm *SessionManager) Shutdown() {
	close(sm.stop)
	<-sm.done
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
