package database

import "time"

type ChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByUsername(username string) (Account, error)
	UpdateLastSeen(accountId int, when time.Time) error

	CreateChannel(params CreateChannelParams) (Channel, error)
	GetChannelById(channelId int) (Channel, error)
	GetChannelByExternalId(externalId string) (Channel, error)
	ListChannels() ([]Channel, error)

	CreateMember(channelId, accountId int, lastReadAt time.Time) (ChannelMember, error)
	GetMember(channelId, accountId int) (ChannelMember, error)
	MemberExists(channelId, accountId int) bool
	ListMembers(channelId int) ([]ChannelMember, error)
	CountMembers(channelId int) (int, error)
	DeleteMember(channelId, accountId int) error
	UpsertLastReadAt(channelId, accountId int, lastReadAt time.Time) error

	CreateJoinRequest(channelId, accountId int) (JoinRequest, error)
	GetJoinRequest(channelId, accountId int) (JoinRequest, error)
	GetJoinRequestById(requestId int) (JoinRequest, error)
	ListPendingJoinRequests(channelId int) ([]JoinRequest, error)
	UpdateJoinRequestStatus(requestId int, status string) error

	CreateMessage(channelId, senderId int, content string) (Message, error)
	GetMessageById(messageId int) (Message, error)
	ListMessagesBefore(channelId int, before time.Time, limit int) ([]Message, error)
	ListMessagesAfter(channelId int, after time.Time, limit int) ([]Message, error)
	CountMessagesAfter(channelId int, after time.Time) (int, error)

	UpsertPinnedMessage(messageId, channelId, pinnedBy int) error
	ListPinnedMessages(channelId int) ([]PinnedMessage, error)
}
