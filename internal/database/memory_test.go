package database

import (
	"testing"
	"time"

	"github.com/speakset/speakset/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChannel(t *testing.T, db *MemSpeaksetRepository) (User, Channel) {
	t.Helper()

	user, err := db.CreateUser(CreateUserParams{Username: "alex", PasswordHash: "x"})
	require.NoError(t, err)

	space, err := db.CreateSpace(CreateSpaceParams{
		Name:       "Dev Lounge",
		InviteSlug: "dev-lounge",
		OwnerId:    user.Id,
		DefaultChannels: []CreateChannelParams{
			{Kind: types.ChannelKindText, Name: "general"},
		},
	})
	require.NoError(t, err)

	ch, err := db.GetChannel(space.Id, types.ChannelKindText, "general")
	require.NoError(t, err)
	return user, ch
}

func seedMessage(t *testing.T, db *MemSpeaksetRepository, channelId int, authorId int, seq int64, text string) Message {
	t.Helper()
	msg, err := db.CreateMessage(CreateMessageParams{
		ChannelId: channelId,
		Seq:       seq,
		AuthorId:  authorId,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return msg
}

func TestCreateUser_caseInsensitiveUnique(t *testing.T) {
	db := NewMemSpeaksetRepository()

	_, err := db.CreateUser(CreateUserParams{Username: "alex", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = db.CreateUser(CreateUserParams{Username: "ALEX", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrDuplicate)

	user, err := db.GetUserByUsername("Alex")
	require.NoError(t, err)
	assert.Equal(t, "alex", user.Username)
}

func TestCreateSpace_ownerMembershipAndDefaults(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)

	m, err := db.GetMembership(ch.SpaceId, user.Id)
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, m.Role)

	channels, err := db.ListChannels(ch.SpaceId)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].Name)

	_, err = db.CreateSpace(CreateSpaceParams{Name: "Other", InviteSlug: "dev-lounge", OwnerId: user.Id})
	assert.ErrorIs(t, err, ErrDuplicate, "invite slugs are unique")
}

func TestCreateChannel_uniquePerKind(t *testing.T) {
	db := NewMemSpeaksetRepository()
	_, ch := seedChannel(t, db)

	_, err := db.CreateChannel(CreateChannelParams{SpaceId: ch.SpaceId, Kind: types.ChannelKindText, Name: "general"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = db.CreateChannel(CreateChannelParams{SpaceId: ch.SpaceId, Kind: types.ChannelKindPrivate, Name: "general"})
	assert.NoError(t, err, "same name under a different kind is a different channel")
}

func TestCreateMessage_seqUnique(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)

	seedMessage(t, db, ch.Id, user.Id, 1, "first")

	_, err := db.CreateMessage(CreateMessageParams{ChannelId: ch.Id, Seq: 1, AuthorId: user.Id, Text: "dup"})
	assert.ErrorIs(t, err, ErrDuplicate)

	max, err := db.MaxSeq(ch.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), max)
}

func TestUpdateMessageText_tombstoned(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)

	msg := seedMessage(t, db, ch.Id, user.Id, 1, "hello")
	require.NoError(t, db.TombstoneMessage(msg.Id))

	err := db.UpdateMessageText(msg.Id, "edited", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNoRows, "tombstoned rows are not editable")

	got, err := db.GetMessage(msg.Id)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Empty(t, got.Text)
	assert.Equal(t, msg.Seq, got.Seq, "tombstone keeps the sequence slot")
}

func TestTombstoneMessage_dropsReactions(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)

	msg := seedMessage(t, db, ch.Id, user.Id, 1, "hello")
	changed, err := db.AddReaction(msg.Id, user.Id, "🔥")
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, db.TombstoneMessage(msg.Id))

	counts, err := db.GetReactionCounts(msg.Id)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestListMessages_paging(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)

	for seq := int64(1); seq <= 9; seq++ {
		seedMessage(t, db, ch.Id, user.Id, seq, "m")
	}

	// The initial fetch returns the newest page, ascending within it.
	page, err := db.ListMessages(ch.Id, 0, 0, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, int64(6), page[0].Seq)
	assert.Equal(t, int64(9), page[3].Seq)

	// Before a boundary: the newest rows strictly below it.
	page, err = db.ListMessages(ch.Id, 6, 0, 4)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, int64(2), page[0].Seq)
	assert.Equal(t, int64(5), page[3].Seq)

	// After a boundary: rows strictly above it, oldest first.
	page, err = db.ListMessages(ch.Id, 0, 6, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(7), page[0].Seq)
	assert.Equal(t, int64(9), page[2].Seq)
}

func TestReactions_perUser(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, ch := seedChannel(t, db)
	other, err := db.CreateUser(CreateUserParams{Username: "rhea", PasswordHash: "x"})
	require.NoError(t, err)

	msg := seedMessage(t, db, ch.Id, user.Id, 1, "hello")

	changed, err := db.AddReaction(msg.Id, user.Id, "🔥")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.AddReaction(msg.Id, user.Id, "🔥")
	require.NoError(t, err)
	assert.False(t, changed, "same user reacting twice is a no-op")

	changed, err = db.AddReaction(msg.Id, other.Id, "🔥")
	require.NoError(t, err)
	assert.True(t, changed)

	counts, err := db.GetReactionCounts(msg.Id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"🔥": 2}, counts)

	changed, err = db.RemoveReaction(msg.Id, user.Id, "🔥")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.RemoveReaction(msg.Id, user.Id, "🔥")
	require.NoError(t, err)
	assert.False(t, changed, "removing an absent reaction is a no-op")

	counts, err = db.GetReactionCounts(msg.Id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"🔥": 1}, counts)
}

func TestSessions(t *testing.T) {
	db := NewMemSpeaksetRepository()
	user, _ := seedChannel(t, db)

	now := time.Now().UTC()
	require.NoError(t, db.CreateSession(Session{Token: "tok", UserId: user.Id, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, db.CreateSession(Session{Token: "old", UserId: user.Id, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))

	n, err := db.DeleteExpiredSessions(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = db.GetSession("old")
	assert.ErrorIs(t, err, ErrNoRows)

	session, err := db.GetSession("tok")
	require.NoError(t, err)
	assert.Equal(t, user.Id, session.UserId)
}

func TestCreateMembership(t *testing.T) {
	db := NewMemSpeaksetRepository()
	_, ch := seedChannel(t, db)
	member, err := db.CreateUser(CreateUserParams{Username: "rhea", PasswordHash: "x"})
	require.NoError(t, err)

	require.NoError(t, db.CreateMembership(Membership{SpaceId: ch.SpaceId, UserId: member.Id, Role: RoleMember}))
	assert.ErrorIs(t, db.CreateMembership(Membership{SpaceId: ch.SpaceId, UserId: member.Id, Role: RoleMember}), ErrDuplicate)
	assert.ErrorIs(t, db.CreateMembership(Membership{SpaceId: 999, UserId: member.Id, Role: RoleMember}), ErrNoRows)

	memberships, err := db.ListMemberships(member.Id)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, "Dev Lounge", memberships[0].Space.Name)
}
