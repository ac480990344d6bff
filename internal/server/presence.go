package server

import (
	"sort"
	"sync"
)

// PresenceTracker counts live connections per (channel, user). A user is
// online in a channel while at least one of their connections is attached,
// so a second browser tab bumps the refcount instead of the online set.
type PresenceTracker struct {
	lock     sync.Mutex
	channels map[string]map[int]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		channels: make(map[string]map[int]int),
	}
}

// Join increments the connection count for the user in the channel and
// reports whether this was the user's first connection there.
func (p *PresenceTracker) Join(channelId string, userId int) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	bucket, ok := p.channels[channelId]
	if !ok {
		bucket = make(map[int]int)
		p.channels[channelId] = bucket
	}

	prev := bucket[userId]
	bucket[userId] = prev + 1

	return prev == 0
}

// Leave decrements the connection count and reports whether the user's last
// connection in the channel is gone. Extra leaves beyond joins are ignored,
// the count never goes negative.
func (p *PresenceTracker) Leave(channelId string, userId int) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	bucket, ok := p.channels[channelId]
	if !ok || bucket[userId] == 0 {
		return false
	}

	bucket[userId]--
	if bucket[userId] > 0 {
		return false
	}

	delete(bucket, userId)
	if len(bucket) == 0 {
		delete(p.channels, channelId)
	}

	return true
}

// Online returns the ids of users with at least one connection in the
// channel, sorted for stable snapshots. Unknown channels yield an empty set.
func (p *PresenceTracker) Online(channelId string) []int {
	p.lock.Lock()
	defer p.lock.Unlock()

	bucket := p.channels[channelId]
	users := make([]int, 0, len(bucket))
	for userId := range bucket {
		users = append(users, userId)
	}

	sort.Ints(users)
	return users
}
