package app

import "github.com/teamhub/callwire/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickSubscriber
	DropFrame
)

// Policy decides what to do with subscribers whose send buffers are full.
type Policy interface {
	OnBackPressure(sid core.SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(sid core.SessionID) BackpressureAction {
	return KickSubscriber
}
