package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/core"
	"github.com/teamhub/callwire/internal/domain"
)

// SignalRelay republishes opaque signaling envelopes to the sender's group.
// It only decodes the header; the bytes subscribers receive are exactly the
// bytes the sender produced.
type SignalRelay struct {
	Channel core.GroupChannel
}

func NewSignalRelay(ch core.GroupChannel) *SignalRelay {
	return &SignalRelay{Channel: ch}
}

// Relay forwards raw to every subscriber of its group. Envelopes missing
// sender or groupId are dropped and logged; the relay has no reliable return
// channel, so the drop is not an error anyone sees.
func (r *SignalRelay) Relay(raw []byte) core.PublishResult {
	var env domain.SignalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("malformed signal dropped")
		return core.PublishResult{}
	}
	if env.Sender == "" || env.GroupID == "" {
		log.Warn().Str("module", "app.relay").Str("type", env.Type).Msg("signal missing sender or groupId, dropped")
		return core.PublishResult{}
	}
	res := r.Channel.Publish(env.GroupID, raw)
	log.Debug().Str("module", "app.relay").Str("group", string(env.GroupID)).Str("type", env.Type).Int("sent_to", res.SentTo).Msg("signal relayed")
	return res
}

// Announce publishes a server-built envelope (e.g. new-producer) to a group.
func (r *SignalRelay) Announce(env domain.SignalEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	r.Channel.Publish(env.GroupID, data)
	return nil
}
