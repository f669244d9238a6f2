package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockSpeaksetRepository struct {
	mock.Mock
}

func (m *MockSpeaksetRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSpeaksetRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSpeaksetRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSpeaksetRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSpeaksetRepository) GetUserByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSpeaksetRepository) CreateSession(session Session) error {
	args := m.Called(session)
	return args.Error(0)
}
func (m *MockSpeaksetRepository) GetSession(token string) (Session, error) {
	args := m.Called(token)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockSpeaksetRepository) DeleteSession(token string) error {
	args := m.Called(token)
	return args.Error(0)
}
func (m *MockSpeaksetRepository) DeleteExpiredSessions(now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}
func (m *MockSpeaksetRepository) CreateSpace(params CreateSpaceParams) (Space, error) {
	args := m.Called(params)
	return args.Get(0).(Space), args.Error(1)
}
func (m *MockSpeaksetRepository) GetSpaceById(id int) (Space, error) {
	args := m.Called(id)
	return args.Get(0).(Space), args.Error(1)
}
func (m *MockSpeaksetRepository) GetSpaceBySlug(slug string) (Space, error) {
	args := m.Called(slug)
	return args.Get(0).(Space), args.Error(1)
}
func (m *MockSpeaksetRepository) ListMemberships(userId int) ([]Membership, error) {
	args := m.Called(userId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockSpeaksetRepository) GetMembership(spaceId, userId int) (Membership, error) {
	args := m.Called(spaceId, userId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockSpeaksetRepository) CreateMembership(membership Membership) error {
	args := m.Called(membership)
	return args.Error(0)
}
func (m *MockSpeaksetRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockSpeaksetRepository) GetChannel(spaceId int, kind, name string) (Channel, error) {
	args := m.Called(spaceId, kind, name)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockSpeaksetRepository) GetChannelById(id int) (Channel, error) {
	args := m.Called(id)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockSpeaksetRepository) ListChannels(spaceId int) ([]Channel, error) {
	args := m.Called(spaceId)
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockSpeaksetRepository) MaxSeq(channelId int) (int64, error) {
	args := m.Called(channelId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockSpeaksetRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSpeaksetRepository) GetMessage(id int64) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSpeaksetRepository) UpdateMessageText(id int64, text string, editedAt time.Time) error {
	args := m.Called(id, text, editedAt)
	return args.Error(0)
}
func (m *MockSpeaksetRepository) TombstoneMessage(id int64) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockSpeaksetRepository) ListMessages(channelId int, beforeSeq, afterSeq int64, limit int) ([]Message, error) {
	args := m.Called(channelId, beforeSeq, afterSeq, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockSpeaksetRepository) AddReaction(messageId int64, userId int, emoji string) (bool, error) {
	args := m.Called(messageId, userId, emoji)
	return args.Bool(0), args.Error(1)
}
func (m *MockSpeaksetRepository) RemoveReaction(messageId int64, userId int, emoji string) (bool, error) {
	args := m.Called(messageId, userId, emoji)
	return args.Bool(0), args.Error(1)
}
func (m *MockSpeaksetRepository) GetReactionCounts(messageId int64) (map[string]int, error) {
	args := m.Called(messageId)
	return args.Get(0).(map[string]int), args.Error(1)
}
