// Package store is the per-channel append-only message log. All
// mutations on one channel are serialized through its channelLog guard
// and published to the broadcaster in commit order; different channels
// proceed fully in parallel.
package store

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/types"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Publisher receives one event per committed mutation. Publish must not
// block: the store calls it while holding the channel guard.
type Publisher interface {
	Publish(event *types.ChannelEvent)
}

type MessageStore struct {
	db  database.SpeaksetRepository
	pub Publisher
	log *log.Logger

	mu       sync.Mutex
	channels map[int]*channelLog
}

// channelLog linearizes mutations for one channel. seq is authoritative
// once loaded; it is recovered from MAX(seq) so restarts cannot reuse a
// sequence number.
type channelLog struct {
	mu     sync.Mutex
	id     int
	ref    types.ChannelRef
	seq    int64
	loaded bool
}

func NewMessageStore(logger *log.Logger, db database.SpeaksetRepository, pub Publisher) *MessageStore {
	return &MessageStore{
		db:       db,
		pub:      pub,
		log:      logger,
		channels: make(map[int]*channelLog),
	}
}

// Append commits a new message at the next sequence number and publishes
// message.created. Fails Forbidden without space membership, NotFound for
// unknown channels, and ValidationFailed when the text trims empty.
func (s *MessageStore) Append(ref types.ChannelRef, authorId int, text string) (types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, apperr.Validation("message text is required")
	}

	ch, err := s.resolveChannel(ref)
	if err != nil {
		return types.Message{}, err
	}
	if err := s.requireMembership(ref.SpaceId, authorId); err != nil {
		return types.Message{}, err
	}

	cl := s.channelFor(ch)
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if err := cl.loadSeq(s.db); err != nil {
		return types.Message{}, apperr.Unavailable("load channel sequence", err)
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ChannelId: ch.Id,
		Seq:       cl.seq + 1,
		AuthorId:  authorId,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return types.Message{}, apperr.Unavailable("create message", err)
	}
	cl.seq = msg.Seq

	wire := s.toWire(msg, cl.ref, nil)
	s.pub.Publish(&types.ChannelEvent{
		Type:      types.EventMessageCreated,
		SpaceId:   cl.ref.SpaceId,
		Channel:   cl.ref.String(),
		Timestamp: msg.CreatedAt,
		Message:   &wire,
	})

	return wire, nil
}

// Edit rewrites a message's text. Only the author may edit; a tombstoned
// or missing message is NotFound.
func (s *MessageStore) Edit(messageId int64, actorId int, newText string) (types.Message, error) {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return types.Message{}, apperr.Validation("message text is required")
	}

	cl, err := s.channelForMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg, err := s.getLive(messageId)
	if err != nil {
		return types.Message{}, err
	}
	if msg.AuthorId != actorId {
		return types.Message{}, apperr.Forbidden("only the author can edit a message")
	}

	// Reactions are loaded before the commit so the edited event never
	// goes out with them wiped by a transient failure.
	counts, err := s.db.GetReactionCounts(messageId)
	if err != nil {
		return types.Message{}, apperr.Unavailable("load reactions", err)
	}

	editedAt := time.Now().UTC()
	if err := s.db.UpdateMessageText(messageId, newText, editedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return types.Message{}, apperr.NotFound("message not found")
		}
		return types.Message{}, apperr.Unavailable("update message", err)
	}
	msg.Text = newText
	msg.EditedAt = &editedAt

	wire := s.toWire(msg, cl.ref, counts)
	s.pub.Publish(&types.ChannelEvent{
		Type:      types.EventMessageEdited,
		SpaceId:   cl.ref.SpaceId,
		Channel:   cl.ref.String(),
		Timestamp: editedAt,
		Message:   &wire,
	})

	return wire, nil
}

// Delete tombstones a message: text and reactions are cleared, the id and
// sequence position are retained. Allowed for the author or the space
// owner.
func (s *MessageStore) Delete(messageId int64, actorId int) error {
	cl, err := s.channelForMessage(messageId)
	if err != nil {
		return err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg, err := s.getLive(messageId)
	if err != nil {
		return err
	}

	if msg.AuthorId != actorId {
		membership, err := s.db.GetMembership(cl.ref.SpaceId, actorId)
		if err != nil {
			if errors.Is(err, database.ErrNoRows) {
				return apperr.Forbidden("only the author or the space owner can delete a message")
			}
			return apperr.Unavailable("lookup membership", err)
		}
		if membership.Role != database.RoleOwner {
			return apperr.Forbidden("only the author or the space owner can delete a message")
		}
	}

	if err := s.db.TombstoneMessage(messageId); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return apperr.NotFound("message not found")
		}
		return apperr.Unavailable("delete message", err)
	}

	s.pub.Publish(&types.ChannelEvent{
		Type:      types.EventMessageDeleted,
		SpaceId:   cl.ref.SpaceId,
		Channel:   cl.ref.String(),
		Timestamp: time.Now().UTC(),
		Deleted:   &types.DeletedPayload{MessageId: messageId},
	})

	return nil
}

// React records a per-user reaction. Reacting twice with the same emoji
// is idempotent: the count never grows past one per user and no duplicate
// event is published.
func (s *MessageStore) React(messageId int64, actorId int, emoji string) (types.Message, error) {
	return s.setReaction(messageId, actorId, emoji, true)
}

// Unreact removes the actor's reaction; removing the last reaction of an
// emoji drops the key entirely. Unreacting without a prior reaction is a
// no-op.
func (s *MessageStore) Unreact(messageId int64, actorId int, emoji string) (types.Message, error) {
	return s.setReaction(messageId, actorId, emoji, false)
}

func (s *MessageStore) setReaction(messageId int64, actorId int, emoji string, add bool) (types.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return types.Message{}, apperr.Validation("emoji is required")
	}

	cl, err := s.channelForMessage(messageId)
	if err != nil {
		return types.Message{}, err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	msg, err := s.getLive(messageId)
	if err != nil {
		return types.Message{}, err
	}
	if err := s.requireMembership(cl.ref.SpaceId, actorId); err != nil {
		return types.Message{}, err
	}

	var changed bool
	if add {
		changed, err = s.db.AddReaction(messageId, actorId, emoji)
	} else {
		changed, err = s.db.RemoveReaction(messageId, actorId, emoji)
	}
	if err != nil {
		return types.Message{}, apperr.Unavailable("update reaction", err)
	}

	counts, err := s.db.GetReactionCounts(messageId)
	if err != nil {
		return types.Message{}, apperr.Unavailable("load reactions", err)
	}

	wire := s.toWire(msg, cl.ref, counts)
	if changed {
		s.pub.Publish(&types.ChannelEvent{
			Type:      types.EventReactionChanged,
			SpaceId:   cl.ref.SpaceId,
			Channel:   cl.ref.String(),
			Timestamp: time.Now().UTC(),
			Reaction: &types.ReactionPayload{
				MessageId: messageId,
				Emoji:     emoji,
				Reactions: counts,
			},
		})
	}

	return wire, nil
}

// ListRange pages a channel strictly by sequence number, ascending
// within each page. With no boundaries the newest page is returned;
// beforeSeq pages older history and afterSeq fills forward gaps.
// Consecutive pages never duplicate or skip messages, including under
// concurrent appends.
func (s *MessageStore) ListRange(ref types.ChannelRef, requesterId int, beforeSeq, afterSeq int64, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	ch, err := s.resolveChannel(ref)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembership(ref.SpaceId, requesterId); err != nil {
		return nil, err
	}

	rows, err := s.db.ListMessages(ch.Id, beforeSeq, afterSeq, limit)
	if err != nil {
		return nil, apperr.Unavailable("list messages", err)
	}

	messages := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		var counts map[string]int
		if !row.Deleted {
			counts, err = s.db.GetReactionCounts(row.Id)
			if err != nil {
				return nil, apperr.Unavailable("load reactions", err)
			}
		}
		messages = append(messages, s.toWire(row, ref, counts))
	}

	return messages, nil
}

// resolveChannel maps a channel reference to its row, enforcing that the
// space exists.
func (s *MessageStore) resolveChannel(ref types.ChannelRef) (database.Channel, error) {
	ch, err := s.db.GetChannel(ref.SpaceId, ref.Kind, ref.Name)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return database.Channel{}, apperr.NotFound("channel not found")
		}
		return database.Channel{}, apperr.Unavailable("lookup channel", err)
	}
	return ch, nil
}

func (s *MessageStore) requireMembership(spaceId, userId int) error {
	_, err := s.db.GetMembership(spaceId, userId)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return apperr.Forbidden("not a member of this space")
		}
		return apperr.Unavailable("lookup membership", err)
	}
	return nil
}

// getLive fetches a message that has not been tombstoned.
func (s *MessageStore) getLive(messageId int64) (database.Message, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return database.Message{}, apperr.NotFound("message not found")
		}
		return database.Message{}, apperr.Unavailable("lookup message", err)
	}
	if msg.Deleted {
		return database.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (s *MessageStore) channelFor(ch database.Channel) *channelLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.channels[ch.Id]
	if !ok {
		cl = &channelLog{
			id:  ch.Id,
			ref: types.ChannelRef{SpaceId: ch.SpaceId, Kind: ch.Kind, Name: ch.Name},
		}
		s.channels[ch.Id] = cl
	}
	return cl
}

func (s *MessageStore) channelForMessage(messageId int64) (*channelLog, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Unavailable("lookup message", err)
	}

	ch, err := s.db.GetChannelById(msg.ChannelId)
	if err != nil {
		return nil, apperr.Unavailable("lookup channel", err)
	}

	return s.channelFor(ch), nil
}

func (cl *channelLog) loadSeq(db database.SpeaksetRepository) error {
	if cl.loaded {
		return nil
	}
	seq, err := db.MaxSeq(cl.id)
	if err != nil {
		return err
	}
	cl.seq = seq
	cl.loaded = true
	return nil
}

func (s *MessageStore) toWire(msg database.Message, ref types.ChannelRef, reactions map[string]int) types.Message {
	wire := types.Message{
		Id:        msg.Id,
		Seq:       msg.Seq,
		SpaceId:   ref.SpaceId,
		Channel:   ref.String(),
		AuthorId:  msg.AuthorId,
		Text:      msg.Text,
		Reactions: reactions,
		Deleted:   msg.Deleted,
		CreatedAt: msg.CreatedAt,
		EditedAt:  msg.EditedAt,
	}
	if author, err := s.db.GetUserById(msg.AuthorId); err == nil {
		wire.Author = author.Username
	}
	return wire
}
