package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/types"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      types.User `json:"user"`
}

type CreateSpaceRequest struct {
	Name string `json:"name"`
}

type JoinSpaceRequest struct {
	Slug string `json:"slug"`
}

type CreateChannelRequest struct {
	SpaceId int    `json:"space_id"`
	Kind    string `json:"kind"`
	Name    string `json:"name"`
}

type PostMessageRequest struct {
	SpaceId int    `json:"space_id"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

type MessagesResponse struct {
	Channel  string          `json:"channel"`
	Messages []types.Message `json:"messages"`
}

const (
	maxStoreRetries   = 3
	storeRetryBackoff = 50 * time.Millisecond
)

func (s *SpeaksetApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *SpeaksetApp) writeDomainError(w http.ResponseWriter, err error) {
	errResp := fromDomainError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println("request failed:", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// withRetry re-runs an operation that failed with a transient Unavailable
// a bounded number of times with backoff before surfacing the error.
func (s *SpeaksetApp) withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxStoreRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(storeRetryBackoff * time.Duration(attempt))
		}
		if err = op(); !apperr.Is(err, apperr.CodeUnavailable) {
			return err
		}
	}
	return err
}

func (s *SpeaksetApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SpeaksetApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.sessions.Register(req.Username, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, user)
}

func (s *SpeaksetApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, user, err := s.sessions.Login(req.Username, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

func (s *SpeaksetApp) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(bearerToken(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *SpeaksetApp) listSpaces(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	spaces, err := s.registry.ListSpaces(userId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, spaces)
}

func (s *SpeaksetApp) createSpace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	space, err := s.registry.CreateSpace(userId, req.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, space)
}

func (s *SpeaksetApp) joinSpace(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	space, err := s.registry.JoinBySlug(req.Slug, userId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, space)
}

func (s *SpeaksetApp) createChannel(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ref, err := s.registry.AddChannel(req.SpaceId, userId, req.Kind, req.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]any{
		"space_id": ref.SpaceId,
		"channel":  ref.String(),
	})
}

// channelRefFromQuery resolves the space_id and channel query parameters
// shared by the message endpoints.
func channelRefFromQuery(r *http.Request) (types.ChannelRef, bool) {
	spaceId, err := strconv.Atoi(r.URL.Query().Get("space_id"))
	if err != nil || spaceId <= 0 {
		return types.ChannelRef{}, false
	}

	ref, err := types.ParseChannelRef(spaceId, r.URL.Query().Get("channel"))
	if err != nil {
		return types.ChannelRef{}, false
	}
	return ref, true
}

func (s *SpeaksetApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ref, ok := channelRefFromQuery(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before, after int64
	var limit int
	var err error
	if v := r.URL.Query().Get("before"); v != "" {
		if before, err = strconv.ParseInt(v, 10, 64); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if v := r.URL.Query().Get("after"); v != "" {
		if after, err = strconv.ParseInt(v, 10, 64); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var messages []types.Message
	err = s.withRetry(func() error {
		messages, err = s.store.ListRange(ref, userId, before, after, limit)
		return err
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MessagesResponse{
		Channel:  ref.String(),
		Messages: messages,
	})
}

func (s *SpeaksetApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ref, err := types.ParseChannelRef(req.SpaceId, req.Channel)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var msg types.Message
	err = s.withRetry(func() error {
		msg, err = s.store.Append(ref, userId, req.Text)
		return err
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]types.Message{"message": msg})
}

func messageIdFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *SpeaksetApp) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := messageIdFromPath(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.store.Edit(messageId, userId, req.Text)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]types.Message{"message": msg})
}

func (s *SpeaksetApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := messageIdFromPath(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.store.Delete(messageId, userId); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *SpeaksetApp) reactMessage(w http.ResponseWriter, r *http.Request) {
	s.setReaction(w, r, true)
}

func (s *SpeaksetApp) unreactMessage(w http.ResponseWriter, r *http.Request) {
	s.setReaction(w, r, false)
}

func (s *SpeaksetApp) setReaction(w http.ResponseWriter, r *http.Request, add bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := messageIdFromPath(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var msg types.Message
	var err error
	if add {
		msg, err = s.store.React(messageId, userId, req.Emoji)
	} else {
		msg, err = s.store.Unreact(messageId, userId, req.Emoji)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]types.Message{"message": msg})
}
