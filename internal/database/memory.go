package database

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MemSpeaksetRepository is a fully in-memory SpeaksetRepository. It backs
// dev mode and the concurrency tests; it honors the same contracts as the
// Postgres implementation, including uniqueness constraints and seq-based
// paging.
type MemSpeaksetRepository struct {
	mu sync.RWMutex

	nextUserId    int
	nextSpaceId   int
	nextChannelId int
	nextMessageId int64

	users       map[int]User
	sessions    map[string]Session
	spaces      map[int]Space
	memberships map[int]map[int]Membership // spaceId -> userId
	channels    map[int]Channel
	messages    map[int64]Message
	reactions   map[int64]map[string]map[int]struct{} // messageId -> emoji -> userIds
}

func NewMemSpeaksetRepository() *MemSpeaksetRepository {
	return &MemSpeaksetRepository{
		users:       make(map[int]User),
		sessions:    make(map[string]Session),
		spaces:      make(map[int]Space),
		memberships: make(map[int]map[int]Membership),
		channels:    make(map[int]Channel),
		messages:    make(map[int64]Message),
		reactions:   make(map[int64]map[string]map[int]struct{}),
	}
}

func (db *MemSpeaksetRepository) Ping() error  { return nil }
func (db *MemSpeaksetRepository) Close() error { return nil }

func (db *MemSpeaksetRepository) CreateUser(params CreateUserParams) (User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Username, params.Username) {
			return User{}, ErrDuplicate
		}
	}

	db.nextUserId++
	user := User{
		Id:           db.nextUserId,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	db.users[user.Id] = user
	return user, nil
}

func (db *MemSpeaksetRepository) GetUserById(id int) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, ok := db.users[id]
	if !ok {
		return User{}, ErrNoRows
	}
	return user, nil
}

func (db *MemSpeaksetRepository) GetUserByUsername(username string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return User{}, ErrNoRows
}

func (db *MemSpeaksetRepository) CreateSession(session Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.sessions[session.Token]; ok {
		return ErrDuplicate
	}
	db.sessions[session.Token] = session
	return nil
}

func (db *MemSpeaksetRepository) GetSession(token string) (Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	session, ok := db.sessions[token]
	if !ok {
		return Session{}, ErrNoRows
	}
	return session, nil
}

func (db *MemSpeaksetRepository) DeleteSession(token string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.sessions, token)
	return nil
}

func (db *MemSpeaksetRepository) DeleteExpiredSessions(now time.Time) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int
	for token, session := range db.sessions {
		if !session.ExpiresAt.After(now) {
			delete(db.sessions, token)
			n++
		}
	}
	return n, nil
}

func (db *MemSpeaksetRepository) CreateSpace(params CreateSpaceParams) (Space, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, s := range db.spaces {
		if s.InviteSlug == params.InviteSlug {
			return Space{}, ErrDuplicate
		}
	}

	db.nextSpaceId++
	space := Space{
		Id:         db.nextSpaceId,
		Name:       params.Name,
		InviteSlug: params.InviteSlug,
		OwnerId:    params.OwnerId,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	db.spaces[space.Id] = space

	db.memberships[space.Id] = map[int]Membership{
		params.OwnerId: {
			SpaceId:   space.Id,
			UserId:    params.OwnerId,
			Role:      RoleOwner,
			CreatedAt: time.Now().UTC(),
		},
	}

	for _, ch := range params.DefaultChannels {
		db.nextChannelId++
		db.channels[db.nextChannelId] = Channel{
			Id:        db.nextChannelId,
			SpaceId:   space.Id,
			Kind:      ch.Kind,
			Name:      ch.Name,
			CreatedAt: time.Now().UTC(),
		}
	}

	return space, nil
}

func (db *MemSpeaksetRepository) GetSpaceById(id int) (Space, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	space, ok := db.spaces[id]
	if !ok {
		return Space{}, ErrNoRows
	}
	return space, nil
}

func (db *MemSpeaksetRepository) GetSpaceBySlug(slug string) (Space, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, s := range db.spaces {
		if s.InviteSlug == slug {
			return s, nil
		}
	}
	return Space{}, ErrNoRows
}

func (db *MemSpeaksetRepository) ListMemberships(userId int) ([]Membership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var memberships []Membership
	for spaceId, users := range db.memberships {
		if m, ok := users[userId]; ok {
			m.Space = db.spaces[spaceId]
			memberships = append(memberships, m)
		}
	}
	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].SpaceId < memberships[j].SpaceId
	})
	return memberships, nil
}

func (db *MemSpeaksetRepository) GetMembership(spaceId, userId int) (Membership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if m, ok := db.memberships[spaceId][userId]; ok {
		return m, nil
	}
	return Membership{}, ErrNoRows
}

func (db *MemSpeaksetRepository) CreateMembership(membership Membership) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.spaces[membership.SpaceId]; !ok {
		return ErrNoRows
	}
	if _, ok := db.memberships[membership.SpaceId][membership.UserId]; ok {
		return ErrDuplicate
	}
	if db.memberships[membership.SpaceId] == nil {
		db.memberships[membership.SpaceId] = make(map[int]Membership)
	}
	membership.CreatedAt = time.Now().UTC()
	db.memberships[membership.SpaceId][membership.UserId] = membership
	return nil
}

func (db *MemSpeaksetRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ch := range db.channels {
		if ch.SpaceId == params.SpaceId && ch.Kind == params.Kind && ch.Name == params.Name {
			return Channel{}, ErrDuplicate
		}
	}

	db.nextChannelId++
	ch := Channel{
		Id:        db.nextChannelId,
		SpaceId:   params.SpaceId,
		Kind:      params.Kind,
		Name:      params.Name,
		CreatedAt: time.Now().UTC(),
	}
	db.channels[ch.Id] = ch
	return ch, nil
}

func (db *MemSpeaksetRepository) GetChannel(spaceId int, kind, name string) (Channel, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, ch := range db.channels {
		if ch.SpaceId == spaceId && ch.Kind == kind && ch.Name == name {
			return ch, nil
		}
	}
	return Channel{}, ErrNoRows
}

func (db *MemSpeaksetRepository) GetChannelById(id int) (Channel, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ch, ok := db.channels[id]
	if !ok {
		return Channel{}, ErrNoRows
	}
	return ch, nil
}

func (db *MemSpeaksetRepository) ListChannels(spaceId int) ([]Channel, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var channels []Channel
	for _, ch := range db.channels {
		if ch.SpaceId == spaceId {
			channels = append(channels, ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Id < channels[j].Id })
	return channels, nil
}

func (db *MemSpeaksetRepository) MaxSeq(channelId int) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var max int64
	for _, msg := range db.messages {
		if msg.ChannelId == channelId && msg.Seq > max {
			max = msg.Seq
		}
	}
	return max, nil
}

func (db *MemSpeaksetRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, msg := range db.messages {
		if msg.ChannelId == params.ChannelId && msg.Seq == params.Seq {
			return Message{}, ErrDuplicate
		}
	}

	db.nextMessageId++
	msg := Message{
		Id:        db.nextMessageId,
		ChannelId: params.ChannelId,
		Seq:       params.Seq,
		AuthorId:  params.AuthorId,
		Text:      params.Text,
		CreatedAt: params.CreatedAt,
	}
	db.messages[msg.Id] = msg
	return msg, nil
}

func (db *MemSpeaksetRepository) GetMessage(id int64) (Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	msg, ok := db.messages[id]
	if !ok {
		return Message{}, ErrNoRows
	}
	return msg, nil
}

func (db *MemSpeaksetRepository) UpdateMessageText(id int64, text string, editedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	msg, ok := db.messages[id]
	if !ok || msg.Deleted {
		return ErrNoRows
	}
	msg.Text = text
	msg.EditedAt = &editedAt
	db.messages[id] = msg
	return nil
}

func (db *MemSpeaksetRepository) TombstoneMessage(id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	msg, ok := db.messages[id]
	if !ok {
		return ErrNoRows
	}
	msg.Text = ""
	msg.Deleted = true
	db.messages[id] = msg
	delete(db.reactions, id)
	return nil
}

func (db *MemSpeaksetRepository) ListMessages(channelId int, beforeSeq, afterSeq int64, limit int) ([]Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var messages []Message
	for _, msg := range db.messages {
		if msg.ChannelId != channelId {
			continue
		}
		if beforeSeq > 0 && msg.Seq >= beforeSeq {
			continue
		}
		if afterSeq > 0 && msg.Seq <= afterSeq {
			continue
		}
		messages = append(messages, msg)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Seq < messages[j].Seq })

	if len(messages) > limit {
		if afterSeq == 0 {
			// Without an "after" boundary the page is anchored at the
			// newest rows below the boundary.
			messages = messages[len(messages)-limit:]
		} else {
			messages = messages[:limit]
		}
	}

	return messages, nil
}

func (db *MemSpeaksetRepository) AddReaction(messageId int64, userId int, emoji string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.messages[messageId]; !ok {
		return false, ErrNoRows
	}

	if db.reactions[messageId] == nil {
		db.reactions[messageId] = make(map[string]map[int]struct{})
	}
	if db.reactions[messageId][emoji] == nil {
		db.reactions[messageId][emoji] = make(map[int]struct{})
	}
	if _, ok := db.reactions[messageId][emoji][userId]; ok {
		return false, nil
	}
	db.reactions[messageId][emoji][userId] = struct{}{}
	return true, nil
}

func (db *MemSpeaksetRepository) RemoveReaction(messageId int64, userId int, emoji string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	users, ok := db.reactions[messageId][emoji]
	if !ok {
		return false, nil
	}
	if _, ok := users[userId]; !ok {
		return false, nil
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(db.reactions[messageId], emoji)
	}
	return true, nil
}

func (db *MemSpeaksetRepository) GetReactionCounts(messageId int64) (map[string]int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	counts := make(map[string]int)
	for emoji, users := range db.reactions[messageId] {
		if len(users) > 0 {
			counts[emoji] = len(users)
		}
	}
	return counts, nil
}
