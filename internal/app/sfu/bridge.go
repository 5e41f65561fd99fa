package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/domain"
)

// ErrNoSendTransport means a producer was requested before its send
// transport existed.
var ErrNoSendTransport = errors.New("no send transport for user")

type transportKey struct {
	User      domain.UserID
	Group     domain.GroupID
	Direction Direction
}

type producerKey struct {
	User  domain.UserID
	Group domain.GroupID
	Kind  TrackKind
}

// MediaUnitBridge provisions SFU-side resources lazily and exactly once per
// key. Bindings are append-mostly: inserted on first request, removed only by
// ReleaseGroup when a call ends. SFU calls run without any binding lock held;
// a per-key in-flight mutex keeps concurrent identical requests to one call.
type MediaUnitBridge struct {
	client *Client
	relay  *app.SignalRelay

	mu         sync.RWMutex
	routers    map[domain.GroupID]string
	transports map[transportKey]TransportDescriptor
	producers  map[producerKey]string

	flightMu sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewMediaUnitBridge(client *Client, relay *app.SignalRelay) *MediaUnitBridge {
	return &MediaUnitBridge{
		client:     client,
		relay:      relay,
		routers:    make(map[domain.GroupID]string),
		transports: make(map[transportKey]TransportDescriptor),
		producers:  make(map[producerKey]string),
		inflight:   make(map[string]*sync.Mutex),
	}
}

func (b *MediaUnitBridge) lockKey(key string) func() {
	b.flightMu.Lock()
	m, ok := b.inflight[key]
	if !ok {
		m = &sync.Mutex{}
		b.inflight[key] = m
	}
	b.flightMu.Unlock()
	m.Lock()
	return m.Unlock
}

// EnsureRouter returns the group's router id, provisioning it on first call.
func (b *MediaUnitBridge) EnsureRouter(ctx context.Context, group domain.GroupID) (string, error) {
	b.mu.RLock()
	id, ok := b.routers[group]
	b.mu.RUnlock()
	if ok {
		return id, nil
	}

	unlock := b.lockKey("router/" + string(group))
	defer unlock()

	b.mu.RLock()
	id, ok = b.routers[group]
	b.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := b.client.CreateRouter(ctx, group)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.routers[group] = id
	b.mu.Unlock()
	log.Info().Str("module", "sfu.bridge").Str("group", string(group)).Str("router", id).Msg("router provisioned")
	return id, nil
}

// CreateTransport is idempotent per (user, group, direction): repeated
// requests return the first descriptor without another SFU call.
func (b *MediaUnitBridge) CreateTransport(ctx context.Context, user domain.UserID, group domain.GroupID, dir Direction) (TransportDescriptor, error) {
	key := transportKey{User: user, Group: group, Direction: dir}
	b.mu.RLock()
	td, ok := b.transports[key]
	b.mu.RUnlock()
	if ok {
		return td, nil
	}

	routerID, err := b.EnsureRouter(ctx, group)
	if err != nil {
		return TransportDescriptor{}, err
	}

	unlock := b.lockKey(fmt.Sprintf("transport/%s/%s/%s", user, group, dir))
	defer unlock()

	b.mu.RLock()
	td, ok = b.transports[key]
	b.mu.RUnlock()
	if ok {
		return td, nil
	}

	td, err = b.client.CreateTransport(ctx, routerID, dir)
	if err != nil {
		return TransportDescriptor{}, err
	}
	b.mu.Lock()
	b.transports[key] = td
	b.mu.Unlock()
	log.Info().Str("module", "sfu.bridge").Str("group", string(group)).Str("user", string(user)).Str("direction", string(dir)).Str("transport", td.ID).Msg("transport created")
	return td, nil
}

// CreateProducer provisions the user's outgoing track once per kind and
// announces it to the group so other members start consuming. The
// announcement happens only when a producer is actually created.
func (b *MediaUnitBridge) CreateProducer(ctx context.Context, user domain.UserID, group domain.GroupID, kind TrackKind, rtpParameters json.RawMessage) (string, error) {
	b.mu.RLock()
	_, hasTransport := b.transports[transportKey{User: user, Group: group, Direction: DirectionSend}]
	routerID, hasRouter := b.routers[group]
	b.mu.RUnlock()
	if !hasTransport || !hasRouter {
		return "", ErrNoSendTransport
	}

	key := producerKey{User: user, Group: group, Kind: kind}
	b.mu.RLock()
	id, ok := b.producers[key]
	b.mu.RUnlock()
	if ok {
		return id, nil
	}

	unlock := b.lockKey(fmt.Sprintf("producer/%s/%s/%s", user, group, kind))
	defer unlock()

	b.mu.RLock()
	id, ok = b.producers[key]
	b.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := b.client.CreateProducer(ctx, routerID, kind, rtpParameters)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.producers[key] = id
	b.mu.Unlock()
	log.Info().Str("module", "sfu.bridge").Str("group", string(group)).Str("user", string(user)).Str("kind", string(kind)).Str("producer", id).Msg("producer created")

	b.announceProducer(user, group, kind, id)
	return id, nil
}

func (b *MediaUnitBridge) announceProducer(user domain.UserID, group domain.GroupID, kind TrackKind, producerID string) {
	payload, err := json.Marshal(map[string]any{
		"userId":     user,
		"producerId": producerID,
		"kind":       kind,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "sfu.bridge").Msg("producer announce marshal")
		return
	}
	if err := b.relay.Announce(domain.SignalEnvelope{
		Type:    "new-producer",
		Sender:  user,
		GroupID: group,
		Data:    payload,
	}); err != nil {
		log.Error().Err(err).Str("module", "sfu.bridge").Str("group", string(group)).Msg("producer announce failed")
	}
}

// RouterRTPCapabilities proxies the SFU's capability document, uncached.
func (b *MediaUnitBridge) RouterRTPCapabilities(ctx context.Context) (json.RawMessage, error) {
	return b.client.RouterRTPCapabilities(ctx)
}

// ReleaseGroup drops every binding scoped to the group. Called when the
// call ends so the next call re-provisions instead of reusing stale ids.
func (b *MediaUnitBridge) ReleaseGroup(group domain.GroupID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.routers, group)
	for k := range b.transports {
		if k.Group == group {
			delete(b.transports, k)
		}
	}
	for k := range b.producers {
		if k.Group == group {
			delete(b.producers, k)
		}
	}
	log.Info().Str("module", "sfu.bridge").Str("group", string(group)).Msg("media bindings released")
}

// HasRouter reports whether a router binding exists for the group.
func (b *MediaUnitBridge) HasRouter(group domain.GroupID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.routers[group]
	return ok
}
