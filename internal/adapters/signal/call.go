package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/domain"
)

func (ctl *Controller) handleSubscribe(cl *client, data []byte) {
	type payload struct {
		Type    string `json:"type"`
		GroupID string `json:"groupId"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}
	group := domain.GroupID(p.GroupID)

	ctl.svc.Channel.Subscribe(group, cl.sid, cl.conn)
	cl.addGroup(group)
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("group", string(group)).Msg("subscribe")

	// Snapshot so the client UI can render current call state right away.
	resp := struct {
		Type        string               `json:"type"`
		GroupID     domain.GroupID       `json:"groupId"`
		Call        *domain.CallSnapshot `json:"call"`
		Subscribers int                  `json:"subscribers"`
	}{
		Type:        "group_state",
		GroupID:     group,
		Subscribers: ctl.svc.Channel.SubscriberCount(group),
	}
	if snap, ok := ctl.svc.Calls.Registry.Get(group); ok {
		resp.Call = &snap
	}
	ctl.sendJSON(cl.conn, resp)
}

func (ctl *Controller) handleUnsubscribe(cl *client, data []byte) {
	type payload struct {
		Type    string `json:"type"`
		GroupID string `json:"groupId"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}
	group := domain.GroupID(p.GroupID)

	ctl.svc.Channel.Unsubscribe(group, cl.sid)
	cl.removeGroup(group)
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("group", string(group)).Msg("unsubscribe")
	ctl.sendJSON(cl.conn, map[string]any{
		"type":    "unsubscribed",
		"groupId": group,
	})
}

// handleCall feeds a call-control action to the coordinator. Errors go back
// to this caller only; successful transitions were already broadcast.
func (ctl *Controller) handleCall(cl *client, data []byte) {
	var req app.CallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "call_error",
			"error": "bad_payload",
		})
		return
	}
	if req.Caller == "" {
		req.Caller = cl.user
	}
	if req.CallerName == "" {
		req.CallerName = ctl.svc.Users.GetOrCreate(cl.sid).Username
	}

	if ctl.limiter != nil && !ctl.limiter.Allow(req.Caller) {
		log.Warn().Str("module", "signal").Str("user", string(req.Caller)).Msg("call action rate limited")
		ctl.sendJSON(cl.conn, map[string]any{
			"type":   "call_error",
			"action": req.Action,
			"error":  "rate_limited",
		})
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("group", string(req.GroupID)).Str("action", req.Action).Msg("call action")
	if _, err := ctl.svc.Calls.Dispatch(req); err != nil {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":    "call_error",
			"groupId": req.GroupID,
			"action":  req.Action,
			"error":   callErrorCode(err),
		})
	}
}

func callErrorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrNoActiveCall):
		return "no_active_call"
	case errors.Is(err, app.ErrInvalidAction):
		return "invalid_action"
	default:
		return "internal"
	}
}
