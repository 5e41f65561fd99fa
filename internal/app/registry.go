package app

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/domain"
)

const registryShards = 32

// RemoveOutcome tells the caller what RemoveParticipant did to the session.
type RemoveOutcome int

const (
	RemoveNoSession RemoveOutcome = iota // no active call for the group
	RemoveAbsent                         // the user was not a participant
	RemoveLeft                           // participant removed, call continues
	RemoveEnded                          // removal ended the call
)

type registryShard struct {
	mu       sync.Mutex
	sessions map[domain.GroupID]*domain.CallSession
}

// SessionRegistry is the authoritative map from group to its single active
// call. Sharded by group id so unrelated groups never contend.
type SessionRegistry struct {
	clock  Clock
	shards [registryShards]*registryShard
}

func NewSessionRegistry(clock Clock) *SessionRegistry {
	r := &SessionRegistry{clock: clock}
	for i := range r.shards {
		r.shards[i] = &registryShard{sessions: make(map[domain.GroupID]*domain.CallSession)}
	}
	return r
}

func (r *SessionRegistry) shardFor(group domain.GroupID) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(group))
	return r.shards[h.Sum32()%registryShards]
}

// CreateIfAbsent atomically inserts a session for the group unless one is
// already active. Exactly one of N concurrent callers observes created=true.
func (r *SessionRegistry) CreateIfAbsent(group domain.GroupID, initiator domain.UserID, initiatorName string) (domain.CallSnapshot, bool) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[group]; ok {
		return sess.Snapshot(), false
	}
	sess := domain.NewCallSession(group, initiator, initiatorName, r.clock.Now())
	s.sessions[group] = sess
	log.Info().Str("module", "app.registry").Str("group", string(group)).Str("initiator", string(initiator)).Msg("call session created")
	return sess.Snapshot(), true
}

func (r *SessionRegistry) Get(group domain.GroupID) (domain.CallSnapshot, bool) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[group]
	if !ok {
		return domain.CallSnapshot{}, false
	}
	return sess.Snapshot(), true
}

// AddParticipant is a no-op returning ok=false when the group has no call.
// Adding a user twice has no additional effect.
func (r *SessionRegistry) AddParticipant(group domain.GroupID, user domain.UserID) (domain.CallSnapshot, bool) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[group]
	if !ok {
		return domain.CallSnapshot{}, false
	}
	sess.AddParticipant(user)
	log.Info().Str("module", "app.registry").Str("group", string(group)).Str("user", string(user)).Msg("participant added")
	return sess.Snapshot(), true
}

// RemoveParticipant removes the user from the group's call. The call ends
// when the initiator leaves or when the participant set empties; the snapshot
// returned for RemoveEnded is the state just before deletion. Removing a user
// who is not a participant reports RemoveAbsent and mutates nothing.
func (r *SessionRegistry) RemoveParticipant(group domain.GroupID, user domain.UserID) (domain.CallSnapshot, RemoveOutcome) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[group]
	if !ok {
		return domain.CallSnapshot{}, RemoveNoSession
	}
	if !sess.HasParticipant(user) {
		return sess.Snapshot(), RemoveAbsent
	}
	sess.RemoveParticipant(user)
	if user == sess.InitiatorID || sess.ParticipantCount() == 0 {
		delete(s.sessions, group)
		log.Info().Str("module", "app.registry").Str("group", string(group)).Str("user", string(user)).Msg("call session ended by leave")
		return sess.Snapshot(), RemoveEnded
	}
	log.Info().Str("module", "app.registry").Str("group", string(group)).Str("user", string(user)).Msg("participant removed")
	return sess.Snapshot(), RemoveLeft
}

// Remove deletes the group's session unconditionally. ok=false means there
// was nothing to delete, which callers treat as success (idempotent end).
func (r *SessionRegistry) Remove(group domain.GroupID) (domain.CallSnapshot, bool) {
	s := r.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[group]
	if !ok {
		return domain.CallSnapshot{}, false
	}
	delete(s.sessions, group)
	log.Info().Str("module", "app.registry").Str("group", string(group)).Msg("call session removed")
	return sess.Snapshot(), true
}

// ActiveGroups lists groups with a running call, for the status API.
func (r *SessionRegistry) ActiveGroups() []domain.CallSnapshot {
	out := make([]domain.CallSnapshot, 0)
	for _, s := range r.shards {
		s.mu.Lock()
		for _, sess := range s.sessions {
			out = append(out, sess.Snapshot())
		}
		s.mu.Unlock()
	}
	return out
}
