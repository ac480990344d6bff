package database

import (
	"database/sql"
	"time"
)

type Account struct {
	Id           int
	Username     string
	DisplayName  string
	PasswordHash string
	LastSeen     sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Channel struct {
	Id         int
	ExternalId string
	Name       string
	IsPrivate  bool
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ChannelMember struct {
	Id         int
	ChannelId  int
	AccountId  int
	Username   string
	JoinedAt   time.Time
	LastReadAt time.Time
}

type JoinRequest struct {
	Id        int
	ChannelId int
	AccountId int
	Username  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id             int
	ChannelId      int
	SenderId       int
	SenderUsername string
	Content        string
	CreatedAt      time.Time
}

type PinnedMessage struct {
	Id        int
	MessageId int
	ChannelId int
	PinnedBy  int
	PinnedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	DisplayName  string
	PasswordHash string
}

type CreateChannelParams struct {
	Name       string
	IsPrivate  bool
	OwnerId    int
	ExternalId string
}

const (
	JoinRequestPending  = "pending"
	JoinRequestApproved = "approved"
	JoinRequestRejected = "rejected"
)
