package core

import "github.com/teamhub/callwire/internal/domain"

// Frame is a raw serialized payload (JSON signaling message).
type Frame []byte

// SessionID identifies one client connection, not a user: the same user may
// hold several connections.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// GroupChannel is a broadcast primitive: one logical channel per group,
// pure fan-out, no interpretation of payload.
type GroupChannel interface {
	Subscribe(group domain.GroupID, sid SessionID, conn SignalConnection)
	Unsubscribe(group domain.GroupID, sid SessionID)
	// UnsubscribeConn removes the subscription only while conn is still the
	// registered connection for sid. Late cleanup of a replaced connection
	// must not evict its successor.
	UnsubscribeConn(group domain.GroupID, sid SessionID, conn SignalConnection)
	Publish(group domain.GroupID, data Frame) PublishResult
	SubscriberCount(group domain.GroupID) int
}
