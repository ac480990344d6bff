package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npacker/go-channels/internal/database"
	"github.com/npacker/go-channels/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024

	// cap on the backlog delivered with the unread count on attach
	maxUnreadMessages = 100
)

// Client is the server side of one live connection. Its Read pump handles
// the connection's events one at a time in arrival order; Write owns all
// socket writes. Everything it shares with other connections goes through
// the chat server.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage

	channelsLock sync.RWMutex
	channels     map[string]struct{}

	stop        chan struct{}
	stopOnce    sync.Once
	cleanupOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		channels:   make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidPayload())
			continue
		}

		switch {
		case msg.Join != nil:
			c.handleJoin(msg.Join)
		case msg.Leave != nil:
			c.handleLeave(msg.Leave)
		case msg.Send != nil:
			c.handleSend(msg.Send)
		case msg.Typing != nil:
			c.handleTyping(msg.Typing)
		case msg.MarkRead != nil:
			c.handleMarkRead(msg.MarkRead)
		default:
			c.queueMessage(ErrInvalidPayload())
		}
	}
}

// handleJoin attaches the connection to a channel: roster subscription,
// presence bump, then the unread handshake for the requesting connection.
// Ids that don't look like channel ids are dropped without a reply.
func (c *Client) handleJoin(join *JoinChannel) {
	if !isValidChannelId(join.ChannelId) {
		return
	}

	ch, err := c.chatServer.db.GetChannelByExternalId(join.ChannelId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Println("get channel:", err)
			c.queueMessage(ErrInternalError())
		}
		return
	}

	c.addChannel(join.ChannelId)
	c.chatServer.Subscribe(join.ChannelId, c)

	first := c.chatServer.presence.Join(join.ChannelId, c.user.Id)
	c.touchLastSeen()

	if first {
		c.chatServer.Broadcast(join.ChannelId, &ServerMessage{
			Presence: &PresenceUpdate{
				ChannelId:   join.ChannelId,
				OnlineUsers: c.chatServer.presence.Online(join.ChannelId),
			},
		})
		c.chatServer.Broadcast(join.ChannelId, &ServerMessage{
			UserJoined: &UserJoined{
				ChannelId: join.ChannelId,
				UserId:    c.user.Id,
				Username:  c.user.Username,
			},
		})
	}

	// The membership row holds the read watermark. A user attaching for the
	// first time starts at epoch zero, so the whole history counts as unread.
	member, err := c.chatServer.db.GetMember(ch.Id, c.user.Id)
	if errors.Is(err, sql.ErrNoRows) {
		member, err = c.chatServer.db.CreateMember(ch.Id, c.user.Id, time.Unix(0, 0).UTC())
	}
	if err != nil {
		c.log.Println("ensure member:", err)
		c.queueMessage(ErrInternalError())
		return
	}

	unread, err := c.chatServer.db.CountMessagesAfter(ch.Id, member.LastReadAt)
	if err != nil {
		c.log.Println("count unread:", err)
		c.queueMessage(ErrInternalError())
		return
	}

	c.queueMessage(&ServerMessage{
		Timestamp: Now(),
		UnreadCount: &UnreadCount{
			ChannelId: join.ChannelId,
			Count:     unread,
		},
	})

	if unread > 0 {
		dbMsgs, err := c.chatServer.db.ListMessagesAfter(ch.Id, member.LastReadAt, maxUnreadMessages)
		if err != nil {
			c.log.Println("list unread:", err)
			c.queueMessage(ErrInternalError())
			return
		}

		messages := make([]types.Message, len(dbMsgs))
		for i, m := range dbMsgs {
			messages[i] = wireMessage(join.ChannelId, m)
		}

		c.queueMessage(&ServerMessage{
			Timestamp: Now(),
			UnreadMessages: &UnreadMessages{
				ChannelId: join.ChannelId,
				Messages:  messages,
			},
		})
	}
}

func (c *Client) handleLeave(leave *LeaveChannel) {
	if !isValidChannelId(leave.ChannelId) {
		return
	}

	c.detach(leave.ChannelId)
	c.touchLastSeen()
}

// detach removes the connection from the channel and, when it was the
// user's last connection there, announces the departure to the remaining
// members. Called for explicit leaves and once per channel on disconnect.
func (c *Client) detach(channelId string) {
	if !c.hasChannel(channelId) {
		return
	}

	c.delChannel(channelId)
	c.chatServer.Unsubscribe(channelId, c)

	if !c.chatServer.presence.Leave(channelId, c.user.Id) {
		return
	}

	c.chatServer.Broadcast(channelId, &ServerMessage{
		Presence: &PresenceUpdate{
			ChannelId:   channelId,
			OnlineUsers: c.chatServer.presence.Online(channelId),
		},
	})
	c.chatServer.Broadcast(channelId, &ServerMessage{
		UserLeft: &UserLeft{
			ChannelId: channelId,
			UserId:    c.user.Id,
			Username:  c.user.Username,
		},
	})
}

func (c *Client) handleSend(send *SendMessage) {
	if !isValidChannelId(send.ChannelId) {
		c.queueMessage(ErrInvalidPayload())
		return
	}

	content := strings.TrimSpace(send.Content)
	if content == "" {
		c.queueMessage(ErrInvalidPayload())
		return
	}

	c.touchLastSeen()

	ch, err := c.chatServer.db.GetChannelByExternalId(send.ChannelId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Println("get channel:", err)
			c.queueMessage(ErrInternalError())
		}
		return
	}

	msg, err := c.chatServer.db.CreateMessage(ch.Id, c.user.Id, content)
	if err != nil {
		c.log.Println("create message:", err)
		c.queueMessage(ErrInternalError())
		return
	}

	c.chatServer.stats.Incr(metricMessagesSent)

	wire := wireMessage(send.ChannelId, msg)
	wire.Sender.Username = c.user.Username

	c.chatServer.Broadcast(send.ChannelId, &ServerMessage{
		Timestamp: msg.CreatedAt,
		Message:   &wire,
	})

	c.queueMessage(&ServerMessage{
		Timestamp: Now(),
		MessageSent: &MessageSent{
			MessageId: msg.Id,
			ChannelId: send.ChannelId,
			CreatedAt: msg.CreatedAt,
		},
	})
}

// handleTyping relays the signal to everyone else in the channel. Nothing
// is stored between signals; expiring stale indicators is the client's job.
func (c *Client) handleTyping(t *Typing) {
	if !isValidChannelId(t.ChannelId) {
		return
	}

	c.chatServer.Broadcast(t.ChannelId, &ServerMessage{
		UserTyping: &UserTyping{
			ChannelId: t.ChannelId,
			UserId:    c.user.Id,
			Username:  c.user.Username,
			IsTyping:  t.IsTyping,
		},
		SkipClient: c,
	})
}

func (c *Client) handleMarkRead(m *MarkRead) {
	if !isValidChannelId(m.ChannelId) {
		return
	}

	ch, err := c.chatServer.db.GetChannelByExternalId(m.ChannelId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Println("get channel:", err)
			c.queueMessage(ErrInternalError())
		}
		return
	}

	if err := c.chatServer.db.UpsertLastReadAt(ch.Id, c.user.Id, Now()); err != nil {
		c.log.Println("upsert last read:", err)
		c.queueMessage(ErrInternalError())
		return
	}

	c.chatServer.Broadcast(m.ChannelId, &ServerMessage{
		MessagesRead: &MessagesRead{
			ChannelId: m.ChannelId,
			UserId:    c.user.Id,
		},
	})
}

// queueMessage drops the message when the send queue is full or the client
// is stopping, a send to a dead connection is never an error.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	case c.send <- msg:
		return true
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup runs the disconnect sequence exactly once, even when a transport
// close races an explicit leave or a server shutdown.
func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		for _, channelId := range c.attachedChannels() {
			c.detach(channelId)
		}

		c.touchLastSeen()
		c.chatServer.DeregisterClient(c)
		c.stopClient()
	})
}

func (c *Client) touchLastSeen() {
	if err := c.chatServer.db.UpdateLastSeen(c.user.Id, Now()); err != nil {
		c.log.Println("update last seen:", err)
	}
}

func (c *Client) addChannel(channelId string) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()

	c.channels[channelId] = struct{}{}
}

func (c *Client) delChannel(channelId string) {
	c.channelsLock.Lock()
	defer c.channelsLock.Unlock()

	delete(c.channels, channelId)
}

func (c *Client) hasChannel(channelId string) bool {
	c.channelsLock.RLock()
	defer c.channelsLock.RUnlock()

	_, ok := c.channels[channelId]
	return ok
}

func (c *Client) attachedChannels() []string {
	c.channelsLock.RLock()
	defer c.channelsLock.RUnlock()

	ids := make([]string, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}

	return ids
}

func wireMessage(channelId string, m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		ChannelId: channelId,
		Sender: types.User{
			Id:       m.SenderId,
			Username: m.SenderUsername,
		},
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
