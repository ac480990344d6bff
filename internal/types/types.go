package types

import (
	"time"
)

type User struct {
	Id          int        `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Password    string     `json:"-"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

type Channel struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	IsPrivate   bool      `json:"is_private"`
	MemberCount int       `json:"member_count"`
	IsMember    bool      `json:"is_member"`
	IsOwner     bool      `json:"is_owner"`
	Requested   bool      `json:"requested"`
	Members     []User    `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type JoinRequest struct {
	Id        int       `json:"id"`
	ChannelId string    `json:"channel_id"`
	User      User      `json:"user"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	ChannelId string    `json:"channel_id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type PinnedMessage struct {
	Id       int       `json:"id"`
	Message  Message   `json:"message"`
	PinnedBy User      `json:"pinned_by"`
	PinnedAt time.Time `json:"pinned_at"`
}
