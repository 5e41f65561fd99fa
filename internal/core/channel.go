package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/domain"
)

// channelImpl is a threadsafe in-memory fan-out hub.
// It never closes adapter-owned connections.
type channelImpl struct {
	mu     sync.RWMutex
	groups map[domain.GroupID]map[SessionID]SignalConnection
}

func NewGroupChannel() GroupChannel {
	return &channelImpl{
		groups: make(map[domain.GroupID]map[SessionID]SignalConnection),
	}
}

func (c *channelImpl) Subscribe(group domain.GroupID, sid SessionID, conn SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.groups[group]
	if !ok {
		subs = make(map[SessionID]SignalConnection)
		c.groups[group] = subs
	}
	subs[sid] = conn
	log.Info().Str("module", "core.channel").Str("group", string(group)).Str("sid", string(sid)).Msg("subscribed")
}

func (c *channelImpl) Unsubscribe(group domain.GroupID, sid SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.groups[group]
	if !ok {
		return
	}
	delete(subs, sid)
	if len(subs) == 0 {
		delete(c.groups, group)
	}
	log.Info().Str("module", "core.channel").Str("group", string(group)).Str("sid", string(sid)).Msg("unsubscribed")
}

func (c *channelImpl) UnsubscribeConn(group domain.GroupID, sid SessionID, conn SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.groups[group]
	if !ok {
		return
	}
	if cur, ok := subs[sid]; !ok || cur != conn {
		// A newer connection took over this sid; leave it subscribed.
		return
	}
	delete(subs, sid)
	if len(subs) == 0 {
		delete(c.groups, group)
	}
	log.Info().Str("module", "core.channel").Str("group", string(group)).Str("sid", string(sid)).Msg("stale connection unsubscribed")
}

// Publish delivers data to every subscriber of the group, the publisher's own
// connection included. Per-connection send buffers keep FIFO per publisher.
func (c *channelImpl) Publish(group domain.GroupID, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for sid, conn := range c.groups[group] {
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.channel").Str("group", string(group)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}

func (c *channelImpl) SubscriberCount(group domain.GroupID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups[group])
}
