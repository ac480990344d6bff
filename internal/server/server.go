package server

import (
	"context"
	"log"
	"sync"

	"github.com/npacker/go-channels/internal/database"
	"github.com/npacker/go-channels/internal/stats"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricTotalConnections  = "TotalConnections"
	metricActiveChannels    = "ActiveChannels"
	metricMessagesSent      = "MessagesSent"
)

// ChatServer accepts authenticated connections and owns the shared state
// between them: the client registry, the per-channel roster used for
// broadcasts, and the presence table. Rosters and presence are kept
// separate on purpose so presence logic tests without a transport.
type ChatServer struct {
	log      *log.Logger
	db       database.ChatRepository
	stats    stats.StatsProvider
	presence *PresenceTracker

	clientsLock sync.Mutex
	clients     map[*Client]struct{}
	clientsWg   sync.WaitGroup

	rosterLock sync.RWMutex
	roster     map[string]map[*Client]struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:      logger,
		db:       db,
		stats:    sp,
		presence: NewPresenceTracker(),
		clients:  make(map[*Client]struct{}),
		roster:   make(map[string]map[*Client]struct{}),
	}

	sp.RegisterMetric(metricActiveConnections)
	sp.RegisterMetric(metricTotalConnections)
	sp.RegisterMetric(metricActiveChannels)
	sp.RegisterMetric(metricMessagesSent)

	return cs, nil
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c] = struct{}{}
	cs.clientsWg.Add(1)
	cs.clientsLock.Unlock()

	cs.stats.Incr(metricActiveConnections)
	cs.stats.Incr(metricTotalConnections)

	// a fresh connection counts as activity
	if err := cs.db.UpdateLastSeen(c.user.Id, Now()); err != nil {
		cs.log.Println("update last seen:", err)
	}

	cs.log.Printf("added connection from %q", c.user.Username)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	_, ok := cs.clients[c]
	if ok {
		delete(cs.clients, c)
		cs.clientsWg.Done()
	}
	cs.clientsLock.Unlock()

	if !ok {
		return
	}

	cs.stats.Decr(metricActiveConnections)
	cs.log.Printf("removed connection from %q", c.user.Username)
}

// Subscribe attaches the client to a channel's roster so it receives
// broadcasts for that channel.
func (cs *ChatServer) Subscribe(channelId string, c *Client) {
	cs.rosterLock.Lock()
	defer cs.rosterLock.Unlock()

	bucket, ok := cs.roster[channelId]
	if !ok {
		bucket = make(map[*Client]struct{})
		cs.roster[channelId] = bucket
		cs.stats.Incr(metricActiveChannels)
	}

	bucket[c] = struct{}{}
}

func (cs *ChatServer) Unsubscribe(channelId string, c *Client) {
	cs.rosterLock.Lock()
	defer cs.rosterLock.Unlock()

	bucket, ok := cs.roster[channelId]
	if !ok {
		return
	}

	delete(bucket, c)
	if len(bucket) == 0 {
		delete(cs.roster, channelId)
		cs.stats.Decr(metricActiveChannels)
	}
}

// Broadcast queues msg on every connection attached to the channel, except
// msg.SkipClient when set. Connections with a full send queue miss the
// message rather than block the broadcaster.
func (cs *ChatServer) Broadcast(channelId string, msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	cs.rosterLock.RLock()
	clients := make([]*Client, 0, len(cs.roster[channelId]))
	for c := range cs.roster[channelId] {
		clients = append(clients, c)
	}
	cs.rosterLock.RUnlock()

	for _, c := range clients {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

// Shutdown stops every live client and waits for their cleanup to finish
// or the context to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.clientsLock.Lock()
	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.Unlock()

	for _, c := range clients {
		c.stopClient()
	}

	done := make(chan struct{})
	go func() {
		cs.clientsWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
