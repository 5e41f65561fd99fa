package signal

func (ctl *Controller) handlePing(cl *client) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(cl.conn, resp)
}

// handleHeartbeat refreshes presence. Purely advisory: no call state moves
// because of a heartbeat, or because of a missing one.
func (ctl *Controller) handleHeartbeat(cl *client) {
	ctl.svc.Presence.MarkOnline(cl.user)
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "heartbeat_ack",
	}
	ctl.sendJSON(cl.conn, resp)
}
