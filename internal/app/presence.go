package app

import (
	"sync"
	"time"

	"github.com/teamhub/callwire/internal/domain"
)

const DefaultPresenceWindow = 60 * time.Second

// PresenceTracker answers "is user online" from heartbeat recency. The
// window is advisory: staleness never forces any call-state change.
type PresenceTracker struct {
	mu       sync.RWMutex
	clock    Clock
	window   time.Duration
	lastSeen map[domain.UserID]time.Time
}

func NewPresenceTracker(clock Clock, window time.Duration) *PresenceTracker {
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &PresenceTracker{
		clock:    clock,
		window:   window,
		lastSeen: make(map[domain.UserID]time.Time),
	}
}

func (p *PresenceTracker) MarkOnline(user domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[user] = p.clock.Now()
}

// IsOnline is false for a user never seen.
func (p *PresenceTracker) IsOnline(user domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen, ok := p.lastSeen[user]
	if !ok {
		return false
	}
	return p.clock.Now().Sub(seen) < p.window
}

func (p *PresenceTracker) LastSeen(user domain.UserID) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen, ok := p.lastSeen[user]
	return seen, ok
}

// Online lists currently online users.
func (p *PresenceTracker) Online() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.clock.Now()
	out := make([]domain.UserID, 0, len(p.lastSeen))
	for uid, seen := range p.lastSeen {
		if now.Sub(seen) < p.window {
			out = append(out, uid)
		}
	}
	return out
}
