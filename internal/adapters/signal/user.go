package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/domain"
)

func (ctl *Controller) handleRename(cl *client, data []byte) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.svc.Users.Rename(cl.sid, p.Name); err != nil {
		ctl.sendJSON(cl.conn, map[string]any{
			"type":  "error",
			"error": "invalid_name",
		})
		return
	}
	ctl.handleWhoAmI(cl)
}

func (ctl *Controller) handleWhoAmI(cl *client) {
	user := ctl.svc.Users.GetOrCreate(cl.sid)

	resp := struct {
		Type     string           `json:"type"`
		Username string           `json:"username"`
		Online   bool             `json:"online"`
		Groups   []domain.GroupID `json:"groups,omitempty"`
	}{
		Type:     "whoami",
		Username: user.Username,
		Online:   ctl.svc.Presence.IsOnline(cl.user),
		Groups:   cl.groupList(),
	}
	ctl.sendJSON(cl.conn, resp)
}
