package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/app/sfu"
	"github.com/teamhub/callwire/internal/domain"
)

// Media setup failures are reported to the requester only, never broadcast.
// SFU calls run on the connection's context, so a dropped requester cancels
// its in-flight provisioning.

func (ctl *Controller) handleCreateTransport(ctx context.Context, cl *client, data []byte) {
	type payload struct {
		Type      string `json:"type"`
		GroupID   string `json:"groupId"`
		Direction string `json:"direction"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "media_error",
			"error": "bad_payload",
		})
		return
	}
	dir := sfu.Direction(p.Direction)
	if dir != sfu.DirectionSend && dir != sfu.DirectionRecv {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "media_error",
			"error": "bad_direction",
		})
		return
	}

	td, err := ctl.svc.Bridge.CreateTransport(ctx, cl.user, domain.GroupID(p.GroupID), dir)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("group", p.GroupID).Msg("create transport")
		ctl.sendJSON(cl.conn, map[string]any{
			"type":    "media_error",
			"groupId": p.GroupID,
			"error":   "media_unavailable",
		})
		return
	}

	resp := struct {
		Type      string                  `json:"type"`
		GroupID   string                  `json:"groupId"`
		Direction string                  `json:"direction"`
		Transport sfu.TransportDescriptor `json:"transport"`
	}{
		Type:      "transport-created",
		GroupID:   p.GroupID,
		Direction: p.Direction,
		Transport: td,
	}
	ctl.sendJSON(cl.conn, resp)
}

func (ctl *Controller) handleCreateProducer(ctx context.Context, cl *client, data []byte) {
	type payload struct {
		Type          string          `json:"type"`
		GroupID       string          `json:"groupId"`
		Kind          string          `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "media_error",
			"error": "bad_payload",
		})
		return
	}
	kind := sfu.TrackKind(p.Kind)
	if kind != sfu.KindAudio && kind != sfu.KindVideo {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "media_error",
			"error": "bad_kind",
		})
		return
	}

	id, err := ctl.svc.Bridge.CreateProducer(ctx, cl.user, domain.GroupID(p.GroupID), kind, p.RTPParameters)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("group", p.GroupID).Msg("create producer")
		ctl.sendJSON(cl.conn, map[string]any{
			"type":    "media_error",
			"groupId": p.GroupID,
			"error":   mediaErrorCode(err),
		})
		return
	}

	resp := struct {
		Type       string `json:"type"`
		GroupID    string `json:"groupId"`
		Kind       string `json:"kind"`
		ProducerID string `json:"producerId"`
	}{
		Type:       "producer-created",
		GroupID:    p.GroupID,
		Kind:       p.Kind,
		ProducerID: id,
	}
	ctl.sendJSON(cl.conn, resp)
}

func mediaErrorCode(err error) string {
	if errors.Is(err, sfu.ErrNoSendTransport) {
		return "no_send_transport"
	}
	return "media_unavailable"
}
