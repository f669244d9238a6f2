package database

import (
	"errors"
	"time"
)

// ErrNoRows is returned by lookups that match nothing, regardless of the
// backing store. Callers translate it into a domain NotFound.
var ErrNoRows = errors.New("database: no rows")

// ErrDuplicate is returned when a uniqueness constraint is violated
// (usernames, invite slugs, channel names per space and kind).
var ErrDuplicate = errors.New("database: duplicate key")

type SpeaksetRepository interface {
	Ping() error
	Close() error

	CreateUser(params CreateUserParams) (User, error)
	GetUserById(id int) (User, error)
	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(username string) (User, error)

	CreateSession(session Session) error
	GetSession(token string) (Session, error)
	DeleteSession(token string) error
	DeleteExpiredSessions(now time.Time) (int, error)

	// CreateSpace creates the space, the owner membership and the default
	// channels atomically.
	CreateSpace(params CreateSpaceParams) (Space, error)
	GetSpaceById(id int) (Space, error)
	GetSpaceBySlug(slug string) (Space, error)
	ListMemberships(userId int) ([]Membership, error)
	GetMembership(spaceId, userId int) (Membership, error)
	CreateMembership(membership Membership) error

	CreateChannel(params CreateChannelParams) (Channel, error)
	GetChannel(spaceId int, kind, name string) (Channel, error)
	ListChannels(spaceId int) ([]Channel, error)
	GetChannelById(id int) (Channel, error)

	// MaxSeq returns the highest committed sequence number in a channel,
	// or zero for an empty channel.
	MaxSeq(channelId int) (int64, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id int64) (Message, error)
	UpdateMessageText(id int64, text string, editedAt time.Time) error
	// TombstoneMessage clears the text and reactions but keeps the row,
	// its id and its seq.
	TombstoneMessage(id int64) error
	// ListMessages pages strictly by sequence number, ascending within
	// the page. Zero boundaries are unbounded; when afterSeq is zero the
	// page is anchored at the newest matching rows.
	ListMessages(channelId int, beforeSeq, afterSeq int64, limit int) ([]Message, error)

	// AddReaction records a per-user reaction and reports whether it was
	// newly added; reacting twice with the same emoji is a no-op.
	AddReaction(messageId int64, userId int, emoji string) (bool, error)
	RemoveReaction(messageId int64, userId int, emoji string) (bool, error)
	GetReactionCounts(messageId int64) (map[string]int, error)
}
