package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountByUsername(username string) (Account, error) {
	args := m.Called(username)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) UpdateLastSeen(accountId int, when time.Time) error {
	args := m.Called(accountId, when)
	return args.Error(0)
}
func (m *MockChatRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockChatRepository) GetChannelById(channelId int) (Channel, error) {
	args := m.Called(channelId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockChatRepository) GetChannelByExternalId(externalId string) (Channel, error) {
	args := m.Called(externalId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockChatRepository) ListChannels() ([]Channel, error) {
	args := m.Called()
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockChatRepository) CreateMember(channelId, accountId int, lastReadAt time.Time) (ChannelMember, error) {
	args := m.Called(channelId, accountId, lastReadAt)
	return args.Get(0).(ChannelMember), args.Error(1)
}
func (m *MockChatRepository) GetMember(channelId, accountId int) (ChannelMember, error) {
	args := m.Called(channelId, accountId)
	return args.Get(0).(ChannelMember), args.Error(1)
}
func (m *MockChatRepository) MemberExists(channelId, accountId int) bool {
	args := m.Called(channelId, accountId)
	return args.Bool(0)
}
func (m *MockChatRepository) ListMembers(channelId int) ([]ChannelMember, error) {
	args := m.Called(channelId)
	return args.Get(0).([]ChannelMember), args.Error(1)
}
func (m *MockChatRepository) CountMembers(channelId int) (int, error) {
	args := m.Called(channelId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) DeleteMember(channelId, accountId int) error {
	args := m.Called(channelId, accountId)
	return args.Error(0)
}
func (m *MockChatRepository) UpsertLastReadAt(channelId, accountId int, lastReadAt time.Time) error {
	args := m.Called(channelId, accountId, lastReadAt)
	return args.Error(0)
}
func (m *MockChatRepository) CreateJoinRequest(channelId, accountId int) (JoinRequest, error) {
	args := m.Called(channelId, accountId)
	return args.Get(0).(JoinRequest), args.Error(1)
}
func (m *MockChatRepository) GetJoinRequest(channelId, accountId int) (JoinRequest, error) {
	args := m.Called(channelId, accountId)
	return args.Get(0).(JoinRequest), args.Error(1)
}
func (m *MockChatRepository) GetJoinRequestById(requestId int) (JoinRequest, error) {
	args := m.Called(requestId)
	return args.Get(0).(JoinRequest), args.Error(1)
}
func (m *MockChatRepository) ListPendingJoinRequests(channelId int) ([]JoinRequest, error) {
	args := m.Called(channelId)
	return args.Get(0).([]JoinRequest), args.Error(1)
}
func (m *MockChatRepository) UpdateJoinRequestStatus(requestId int, status string) error {
	args := m.Called(requestId, status)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMessage(channelId, senderId int, content string) (Message, error) {
	args := m.Called(channelId, senderId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessageById(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) ListMessagesBefore(channelId int, before time.Time, limit int) ([]Message, error) {
	args := m.Called(channelId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) ListMessagesAfter(channelId int, after time.Time, limit int) ([]Message, error) {
	args := m.Called(channelId, after, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) CountMessagesAfter(channelId int, after time.Time) (int, error) {
	args := m.Called(channelId, after)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) UpsertPinnedMessage(messageId, channelId, pinnedBy int) error {
	args := m.Called(messageId, channelId, pinnedBy)
	return args.Error(0)
}
func (m *MockChatRepository) ListPinnedMessages(channelId int) ([]PinnedMessage, error) {
	args := m.Called(channelId)
	return args.Get(0).([]PinnedMessage), args.Error(1)
}
