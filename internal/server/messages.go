package server

import (
	"time"

	"github.com/npacker/go-channels/internal/types"
)

const (
	// error codes carried by the error event
	CodeInvalidPayload = "invalid_payload"
	CodeInternalError  = "internal_error"
)

type ClientMessage struct {
	Join     *JoinChannel  `json:"join_channel,omitempty"`
	Leave    *LeaveChannel `json:"leave_channel,omitempty"`
	Send     *SendMessage  `json:"send_message,omitempty"`
	Typing   *Typing       `json:"typing,omitempty"`
	MarkRead *MarkRead     `json:"mark_read,omitempty"`
}

type JoinChannel struct {
	ChannelId string `json:"channel_id"`
}

type LeaveChannel struct {
	ChannelId string `json:"channel_id"`
}

type SendMessage struct {
	ChannelId string `json:"channel_id"`
	Content   string `json:"content"`
}

type Typing struct {
	ChannelId string `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
}

type MarkRead struct {
	ChannelId string `json:"channel_id"`
}

type ServerMessage struct {
	Timestamp      time.Time       `json:"timestamp"`
	Presence       *PresenceUpdate `json:"presence_update,omitempty"`
	UserJoined     *UserJoined     `json:"user_joined,omitempty"`
	UserLeft       *UserLeft       `json:"user_left,omitempty"`
	Message        *types.Message  `json:"message,omitempty"`
	MessageSent    *MessageSent    `json:"message_sent,omitempty"`
	UnreadCount    *UnreadCount    `json:"unread_count,omitempty"`
	UnreadMessages *UnreadMessages `json:"unread_messages,omitempty"`
	UserTyping     *UserTyping     `json:"user_typing,omitempty"`
	MessagesRead   *MessagesRead   `json:"messages_read,omitempty"`
	Error          *ErrorEvent     `json:"error,omitempty"`
	SkipClient     *Client         `json:"-"`
}

type PresenceUpdate struct {
	ChannelId   string `json:"channel_id"`
	OnlineUsers []int  `json:"online_users"`
}

type UserJoined struct {
	ChannelId string `json:"channel_id"`
	UserId    int    `json:"user_id"`
	Username  string `json:"username"`
}

type UserLeft struct {
	ChannelId string `json:"channel_id"`
	UserId    int    `json:"user_id"`
	Username  string `json:"username"`
}

type MessageSent struct {
	MessageId int       `json:"message_id"`
	ChannelId string    `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

type UnreadCount struct {
	ChannelId string `json:"channel_id"`
	Count     int    `json:"count"`
}

type UnreadMessages struct {
	ChannelId string          `json:"channel_id"`
	Messages  []types.Message `json:"messages"`
}

type UserTyping struct {
	ChannelId string `json:"channel_id"`
	UserId    int    `json:"user_id"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"is_typing"`
}

type MessagesRead struct {
	ChannelId string `json:"channel_id"`
	UserId    int    `json:"user_id"`
}

type ErrorEvent struct {
	Code string `json:"code"`
}

func ErrInvalidPayload() *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Error:     &ErrorEvent{Code: CodeInvalidPayload},
	}
}

func ErrInternalError() *ServerMessage {
	return &ServerMessage{
		Timestamp: Now(),
		Error:     &ErrorEvent{Code: CodeInternalError},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

const maxChannelIdLen = 14

// isValidChannelId reports whether id looks like a channel external id as
// produced by shortid. Requests naming anything else are dropped silently.
func isValidChannelId(id string) bool {
	if id == "" || len(id) > maxChannelIdLen {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}

	return true
}
