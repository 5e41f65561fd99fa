package domain

import "time"

// CallSession is the single active call of one group. Synchronization is the
// registry's job; these helpers assume the caller holds the group's lock.
type CallSession struct {
	GroupID       GroupID
	InitiatorID   UserID
	InitiatorName string
	StartedAt     time.Time

	participants map[UserID]struct{}
}

func NewCallSession(group GroupID, initiator UserID, initiatorName string, startedAt time.Time) *CallSession {
	return &CallSession{
		GroupID:       group,
		InitiatorID:   initiator,
		InitiatorName: initiatorName,
		StartedAt:     startedAt,
		participants:  map[UserID]struct{}{initiator: {}},
	}
}

// AddParticipant is idempotent; adding a present user changes nothing.
func (s *CallSession) AddParticipant(user UserID) {
	s.participants[user] = struct{}{}
}

func (s *CallSession) RemoveParticipant(user UserID) {
	delete(s.participants, user)
}

func (s *CallSession) HasParticipant(user UserID) bool {
	_, ok := s.participants[user]
	return ok
}

func (s *CallSession) ParticipantCount() int {
	return len(s.participants)
}

// CallSnapshot is a read-only copy safe to hand out after the lock is gone.
type CallSnapshot struct {
	GroupID       GroupID   `json:"groupId"`
	InitiatorID   UserID    `json:"initiator"`
	InitiatorName string    `json:"initiatorName,omitempty"`
	Participants  []UserID  `json:"participants"`
	StartedAt     time.Time `json:"startedAt"`
	Active        bool      `json:"active"`
}

func (s *CallSession) Snapshot() CallSnapshot {
	out := CallSnapshot{
		GroupID:       s.GroupID,
		InitiatorID:   s.InitiatorID,
		InitiatorName: s.InitiatorName,
		StartedAt:     s.StartedAt,
		Active:        true,
		Participants:  make([]UserID, 0, len(s.participants)),
	}
	for uid := range s.participants {
		out.Participants = append(out.Participants, uid)
	}
	return out
}
