package domain

import "encoding/json"

// SignalEnvelope is the header of any relayed signaling message. Data stays
// opaque; the relay republishes the original bytes, never this struct.
type SignalEnvelope struct {
	Type       string          `json:"type"`
	Sender     UserID          `json:"sender"`
	GroupID    GroupID         `json:"groupId"`
	TargetUser UserID          `json:"targetUser,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}
