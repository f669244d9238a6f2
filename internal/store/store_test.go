package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/testutil"
	"github.com/speakset/speakset/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records published events in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []*types.ChannelEvent
}

func (p *capturePublisher) Publish(event *types.ChannelEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) all() []*types.ChannelEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.ChannelEvent(nil), p.events...)
}

type storeFixture struct {
	db    *database.MemSpeaksetRepository
	pub   *capturePublisher
	store *MessageStore

	owner  database.User
	member database.User
	ref    types.ChannelRef
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	db := database.NewMemSpeaksetRepository()
	pub := &capturePublisher{}

	owner, err := db.CreateUser(database.CreateUserParams{Username: "alex", PasswordHash: "x"})
	require.NoError(t, err)
	member, err := db.CreateUser(database.CreateUserParams{Username: "rhea", PasswordHash: "x"})
	require.NoError(t, err)

	space, err := db.CreateSpace(database.CreateSpaceParams{
		Name:       "Dev Lounge",
		InviteSlug: "dev-lounge",
		OwnerId:    owner.Id,
		DefaultChannels: []database.CreateChannelParams{
			{Kind: types.ChannelKindText, Name: "general"},
			{Kind: types.ChannelKindPrivate, Name: "staff-only"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, db.CreateMembership(database.Membership{
		SpaceId: space.Id,
		UserId:  member.Id,
		Role:    database.RoleMember,
	}))

	return &storeFixture{
		db:     db,
		pub:    pub,
		store:  NewMessageStore(testutil.TestLogger(t), db, pub),
		owner:  owner,
		member: member,
		ref:    types.ChannelRef{SpaceId: space.Id, Kind: types.ChannelKindText, Name: "general"},
	}
}

func TestAppend(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Text, "expected text to be trimmed")
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "text:general", msg.Channel)
	assert.Equal(t, "alex", msg.Author)

	msg2, err := f.store.Append(f.ref, f.member.Id, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg2.Seq, "expected monotonic sequence")

	events := f.pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventMessageCreated, events[0].Type)
	assert.Equal(t, msg.Id, events[0].Message.Id, "expected event id to match the committed id")
	assert.Equal(t, "hi", events[0].Message.Text)
}

func TestAppend_emptyText(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(f.ref, f.owner.Id, "   ")
	assert.True(t, apperr.Is(err, apperr.CodeValidation), "expected validation error, got %v", err)
	assert.Empty(t, f.pub.all(), "expected no event for a rejected append")
}

func TestAppend_nonMemberForbidden(t *testing.T) {
	f := newStoreFixture(t)

	outsider, err := f.db.CreateUser(database.CreateUserParams{Username: "mallory", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = f.store.Append(f.ref, outsider.Id, "let me in")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "expected forbidden, got %v", err)
}

func TestAppend_unknownChannel(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(types.ChannelRef{SpaceId: f.ref.SpaceId, Kind: types.ChannelKindText, Name: "nope"}, f.owner.Id, "hi")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "expected not found, got %v", err)
}

func TestEdit(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "typo")
	require.NoError(t, err)
	_, err = f.store.React(msg.Id, f.member.Id, "🔥")
	require.NoError(t, err)

	edited, err := f.store.Edit(msg.Id, f.owner.Id, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Text)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, 1, edited.Reactions["🔥"], "editing must not clear reactions")

	events := f.pub.all()
	require.Len(t, events, 3)
	assert.Equal(t, types.EventMessageEdited, events[2].Type)
	require.NotNil(t, events[2].Message)
	assert.Equal(t, 1, events[2].Message.Reactions["🔥"])
}

func TestEdit_reactionLookupUnavailable(t *testing.T) {
	mockDb := &database.MockSpeaksetRepository{}
	msg := database.Message{Id: 7, ChannelId: 3, Seq: 1, AuthorId: 2, Text: "typo", CreatedAt: time.Now().UTC()}
	mockDb.On("GetMessage", int64(7)).Return(msg, nil)
	mockDb.On("GetChannelById", 3).Return(database.Channel{Id: 3, SpaceId: 1, Kind: types.ChannelKindText, Name: "general"}, nil)
	mockDb.On("GetReactionCounts", int64(7)).Return(map[string]int(nil), errors.New("connection refused"))

	pub := &capturePublisher{}
	s := NewMessageStore(testutil.TestLogger(t), mockDb, pub)

	_, err := s.Edit(7, 2, "fixed")
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable), "expected unavailable, got %v", err)
	assert.Empty(t, pub.all(), "no edit must commit or publish when reactions cannot be loaded")
	mockDb.AssertExpectations(t)
}

func TestDelete_membershipLookupUnavailable(t *testing.T) {
	mockDb := &database.MockSpeaksetRepository{}
	msg := database.Message{Id: 7, ChannelId: 3, Seq: 1, AuthorId: 2, Text: "x", CreatedAt: time.Now().UTC()}
	mockDb.On("GetMessage", int64(7)).Return(msg, nil)
	mockDb.On("GetChannelById", 3).Return(database.Channel{Id: 3, SpaceId: 1, Kind: types.ChannelKindText, Name: "general"}, nil)
	mockDb.On("GetMembership", 1, 9).Return(database.Membership{}, errors.New("connection refused"))

	pub := &capturePublisher{}
	s := NewMessageStore(testutil.TestLogger(t), mockDb, pub)

	err := s.Delete(7, 9)
	assert.True(t, apperr.Is(err, apperr.CodeUnavailable), "transient lookup failure must not read as forbidden, got %v", err)
	assert.Empty(t, pub.all())
	mockDb.AssertExpectations(t)
}

func TestEdit_nonAuthorForbidden(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "mine")
	require.NoError(t, err)

	_, err = f.store.Edit(msg.Id, f.member.Id, "hijacked")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "expected forbidden, got %v", err)
}

func TestEdit_tombstonedNotFound(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "going away")
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(msg.Id, f.owner.Id))

	_, err = f.store.Edit(msg.Id, f.owner.Id, "too late")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "expected not found for tombstoned message, got %v", err)
}

func TestDelete_tombstonePreservesOrder(t *testing.T) {
	f := newStoreFixture(t)

	first, err := f.store.Append(f.ref, f.member.Id, "first")
	require.NoError(t, err)
	second, err := f.store.Append(f.ref, f.member.Id, "second")
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(first.Id, f.member.Id))

	messages, err := f.store.ListRange(f.ref, f.owner.Id, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2, "tombstoned message must keep its position")
	assert.True(t, messages[0].Deleted)
	assert.Empty(t, messages[0].Text, "tombstone must clear text")
	assert.Equal(t, first.Seq, messages[0].Seq)
	assert.Equal(t, second.Id, messages[1].Id)

	events := f.pub.all()
	require.Len(t, events, 3)
	assert.Equal(t, types.EventMessageDeleted, events[2].Type)
	assert.Equal(t, first.Id, events[2].Deleted.MessageId)
}

func TestDelete_spaceOwnerMayDelete(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.member.Id, "off topic")
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(msg.Id, f.owner.Id))
}

func TestDelete_otherMemberForbidden(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "owner's message")
	require.NoError(t, err)

	err = f.store.Delete(msg.Id, f.member.Id)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "expected forbidden, got %v", err)
}

func TestReact_idempotentPerUser(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "nice")
	require.NoError(t, err)

	got, err := f.store.React(msg.Id, f.member.Id, "🔥")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Reactions["🔥"])

	// Reacting twice with the same emoji must not double count and must
	// not publish a second event.
	got, err = f.store.React(msg.Id, f.member.Id, "🔥")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Reactions["🔥"])

	var reactionEvents int
	for _, evt := range f.pub.all() {
		if evt.Type == types.EventReactionChanged {
			reactionEvents++
		}
	}
	assert.Equal(t, 1, reactionEvents, "duplicate react must not publish")

	got, err = f.store.React(msg.Id, f.owner.Id, "🔥")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Reactions["🔥"], "distinct users both count")
}

func TestUnreact_roundTrip(t *testing.T) {
	f := newStoreFixture(t)

	msg, err := f.store.Append(f.ref, f.owner.Id, "hello")
	require.NoError(t, err)

	_, err = f.store.React(msg.Id, f.member.Id, "👋")
	require.NoError(t, err)

	got, err := f.store.Unreact(msg.Id, f.member.Id, "👋")
	require.NoError(t, err)
	assert.NotContains(t, got.Reactions, "👋", "removing the last reaction removes the key")

	// Unreacting with no prior reaction is a no-op.
	got, err = f.store.Unreact(msg.Id, f.member.Id, "👋")
	require.NoError(t, err)
	assert.NotContains(t, got.Reactions, "👋")
}

func TestListRange_pagination(t *testing.T) {
	f := newStoreFixture(t)

	for i := 1; i <= 25; i++ {
		_, err := f.store.Append(f.ref, f.owner.Id, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	var seen []int64
	before := int64(0)
	for {
		page, err := f.store.ListRange(f.ref, f.owner.Id, before, 0, 10)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for i := len(page) - 1; i >= 0; i-- {
			seen = append(seen, page[i].Seq)
		}
		before = page[0].Seq
	}

	require.Len(t, seen, 25, "pages must neither duplicate nor skip")
	for i, seq := range seen {
		assert.Equal(t, int64(25-i), seq)
	}
}

func TestListRange_nonMemberForbidden(t *testing.T) {
	f := newStoreFixture(t)

	outsider, err := f.db.CreateUser(database.CreateUserParams{Username: "mallory", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = f.store.ListRange(f.ref, outsider.Id, 0, 0, 10)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "expected forbidden, got %v", err)
}

func TestAppend_concurrentTotalOrder(t *testing.T) {
	f := newStoreFixture(t)

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := f.store.Append(f.ref, f.owner.Id, fmt.Sprintf("w%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	messages, err := f.store.ListRange(f.ref, f.owner.Id, 0, 0, MaxPageSize)
	require.NoError(t, err)
	require.Len(t, messages, writers*perWriter)

	seen := make(map[int64]bool)
	for i, msg := range messages {
		assert.False(t, seen[msg.Seq], "sequence number %d assigned twice", msg.Seq)
		seen[msg.Seq] = true
		assert.Equal(t, int64(i+1), msg.Seq, "sequence must be dense and ordered")
	}

	// Events were published in commit order: their seqs are strictly
	// increasing.
	var last int64
	for _, evt := range f.pub.all() {
		require.Equal(t, types.EventMessageCreated, evt.Type)
		assert.Equal(t, last+1, evt.Message.Seq, "events must be published in commit order")
		last = evt.Message.Seq
	}
}

func TestAppend_channelsIndependent(t *testing.T) {
	f := newStoreFixture(t)

	staff := types.ChannelRef{SpaceId: f.ref.SpaceId, Kind: types.ChannelKindPrivate, Name: "staff-only"}

	var wg sync.WaitGroup
	for _, ref := range []types.ChannelRef{f.ref, staff} {
		wg.Add(1)
		go func(ref types.ChannelRef) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.store.Append(ref, f.owner.Id, "x")
				assert.NoError(t, err)
			}
		}(ref)
	}
	wg.Wait()

	for _, ref := range []types.ChannelRef{f.ref, staff} {
		messages, err := f.store.ListRange(ref, f.owner.Id, 0, 0, 50)
		require.NoError(t, err)
		require.Len(t, messages, 20)
		assert.Equal(t, int64(20), messages[19].Seq, "each channel keeps its own sequence")
	}
}

func TestSeqRecoveredAfterRestart(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Append(f.ref, f.owner.Id, "before restart")
	require.NoError(t, err)

	// A fresh store over the same repository must continue the sequence.
	restarted := NewMessageStore(testutil.TestLogger(t), f.db, f.pub)
	msg, err := restarted.Append(f.ref, f.owner.Id, "after restart")
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Seq)
}
