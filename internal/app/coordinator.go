package app

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/core"
	"github.com/teamhub/callwire/internal/domain"
)

const (
	ActionStartCall   = "START_CALL"
	ActionJoinCall    = "JOIN_CALL"
	ActionLeaveCall   = "LEAVE_CALL"
	ActionDeclineCall = "DECLINE_CALL"
	ActionEndCall     = "END_CALL"
)

const (
	EventIncomingCall = "INCOMING_CALL"
	EventUserJoined   = "USER_JOINED"
	EventUserLeft     = "USER_LEFT"
	EventCallEnded    = "CALL_ENDED"
)

var (
	ErrInvalidAction = errors.New("invalid call action")
	ErrNoActiveCall  = errors.New("no active call")
)

// CallRequest is the client-facing call-control message.
type CallRequest struct {
	GroupID    domain.GroupID `json:"groupId"`
	Action     string         `json:"action"`
	Caller     domain.UserID  `json:"caller"`
	CallerName string         `json:"callerName,omitempty"`
	TargetUser domain.UserID  `json:"targetUser,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

// CallInfo is the authoritative call state attached to every broadcast.
type CallInfo struct {
	Caller       domain.UserID   `json:"caller"`
	CallerName   string          `json:"callerName"`
	Active       bool            `json:"active"`
	Participants []domain.UserID `json:"participants"`
	StartTime    int64           `json:"startTime"`
}

// CallBroadcast is what every subscriber of the group receives, the action's
// own sender included, so client UIs converge to the authoritative state.
type CallBroadcast struct {
	Notification CallRequest `json:"notification"`
	EventType    string      `json:"eventType"`
	CallInfo     CallInfo    `json:"callInfo"`
	Timestamp    int64       `json:"timestamp"`
}

// MediaReleaser tears down media bindings of an ended call.
type MediaReleaser interface {
	ReleaseGroup(group domain.GroupID)
}

// CallCoordinator applies call-control actions to the SessionRegistry and
// publishes the resulting state through the group channel.
type CallCoordinator struct {
	Registry *SessionRegistry
	Channel  core.GroupChannel
	Media    MediaReleaser
	Clock    Clock

	mu      sync.Mutex
	ordered map[domain.GroupID]*sync.Mutex
}

func NewCallCoordinator(reg *SessionRegistry, ch core.GroupChannel, media MediaReleaser, clock Clock) *CallCoordinator {
	return &CallCoordinator{
		Registry: reg,
		Channel:  ch,
		Media:    media,
		Clock:    clock,
		ordered:  make(map[domain.GroupID]*sync.Mutex),
	}
}

// publishLock serializes mutation+publish per group so broadcast order
// matches the order registry mutations were applied.
func (c *CallCoordinator) publishLock(group domain.GroupID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.ordered[group]
	if !ok {
		m = &sync.Mutex{}
		c.ordered[group] = m
	}
	return m
}

// Dispatch runs one call-control action. The returned broadcast is nil when
// nothing was published (errors and race no-ops). Errors stay with the
// caller; they are never broadcast.
func (c *CallCoordinator) Dispatch(req CallRequest) (*CallBroadcast, error) {
	switch req.Action {
	case ActionStartCall, ActionJoinCall, ActionLeaveCall, ActionDeclineCall, ActionEndCall:
	default:
		log.Warn().Str("module", "app.coordinator").Str("action", req.Action).Msg("unknown action")
		return nil, ErrInvalidAction
	}

	lock := c.publishLock(req.GroupID)
	lock.Lock()
	defer lock.Unlock()

	switch req.Action {
	case ActionStartCall:
		snap, created := c.Registry.CreateIfAbsent(req.GroupID, req.Caller, req.CallerName)
		if !created {
			// Lost the start race: the session already exists. Treated as
			// success with no second INCOMING_CALL.
			log.Info().Str("module", "app.coordinator").Str("group", string(req.GroupID)).Msg("start ignored, call already active")
			return nil, nil
		}
		return c.broadcast(req, EventIncomingCall, snap), nil

	case ActionJoinCall:
		snap, ok := c.Registry.AddParticipant(req.GroupID, req.Caller)
		if !ok {
			return nil, ErrNoActiveCall
		}
		return c.broadcast(req, EventUserJoined, snap), nil

	case ActionLeaveCall, ActionDeclineCall:
		snap, outcome := c.Registry.RemoveParticipant(req.GroupID, req.Caller)
		switch outcome {
		case RemoveNoSession, RemoveAbsent:
			// Concurrent end already removed the session, or the user never
			// joined this call: idempotent success, nothing to announce.
			return nil, nil
		case RemoveEnded:
			snap.Active = false
			c.endGroup(req.GroupID)
			return c.broadcast(req, EventCallEnded, snap), nil
		default:
			return c.broadcast(req, EventUserLeft, snap), nil
		}

	case ActionEndCall:
		snap, ok := c.Registry.Remove(req.GroupID)
		if !ok {
			return nil, nil
		}
		snap.Active = false
		c.endGroup(req.GroupID)
		return c.broadcast(req, EventCallEnded, snap), nil
	}
	return nil, ErrInvalidAction
}

// HandleDisconnect runs the implicit LEAVE_CALL for every group the
// disconnecting connection was subscribed to. Groups where the user never
// joined the call resolve as quiet no-ops. Driven by the transport layer.
func (c *CallCoordinator) HandleDisconnect(user domain.UserID, groups []domain.GroupID) {
	for _, g := range groups {
		if _, err := c.Dispatch(CallRequest{
			GroupID: g,
			Action:  ActionLeaveCall,
			Caller:  user,
		}); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("group", string(g)).Str("user", string(user)).Msg("disconnect leave failed")
		}
	}
}

// endGroup drops per-call state once the session is gone: media bindings and
// the group's ordering mutex. Waiters already holding the old mutex finish
// their publish; a later call on the group starts fresh.
func (c *CallCoordinator) endGroup(group domain.GroupID) {
	if c.Media != nil {
		c.Media.ReleaseGroup(group)
	}
	c.mu.Lock()
	delete(c.ordered, group)
	c.mu.Unlock()
}

func (c *CallCoordinator) broadcast(req CallRequest, eventType string, snap domain.CallSnapshot) *CallBroadcast {
	b := &CallBroadcast{
		Notification: req,
		EventType:    eventType,
		CallInfo: CallInfo{
			Caller:       snap.InitiatorID,
			CallerName:   snap.InitiatorName,
			Active:       snap.Active,
			Participants: snap.Participants,
			StartTime:    snap.StartedAt.UnixMilli(),
		},
		Timestamp: c.Clock.Now().UnixMilli(),
	}
	data, err := json.Marshal(b)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("broadcast marshal")
		return b
	}
	res := c.Channel.Publish(req.GroupID, data)
	log.Info().
		Str("module", "app.coordinator").
		Str("group", string(req.GroupID)).
		Str("event", eventType).
		Int("sent_to", res.SentTo).
		Int("dropped", len(res.Dropped)).
		Msg("call event published")
	return b
}
