package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/app/sfu"
	"github.com/teamhub/callwire/internal/core"
	"github.com/teamhub/callwire/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the WS surface: one duplex connection per client, a
// dispatch switch per message, and the disconnect hook that turns a dropped
// connection into implicit leaves.
type Controller struct {
	svc     *Services
	limiter *CallRateLimiter

	mu      sync.RWMutex
	clients map[core.SessionID]*client
}

// Services groups the app services the controller drives.
type Services struct {
	Calls    *app.CallCoordinator
	Relay    *app.SignalRelay
	Presence *app.PresenceTracker
	Users    *app.UserRegistry
	Bridge   *sfu.MediaUnitBridge
	Channel  core.GroupChannel
	Policy   app.Policy
}

func NewController(deps *Services, limiter *CallRateLimiter) *Controller {
	return &Controller{
		svc:     deps,
		limiter: limiter,
		clients: make(map[core.SessionID]*client),
	}
}

// client is the per-connection state: the socket plus the set of groups this
// connection subscribed to, needed for disconnect cleanup.
type client struct {
	sid  core.SessionID
	user domain.UserID
	conn *WsSignalConn

	mu     sync.Mutex
	groups map[domain.GroupID]struct{}
}

func (c *client) addGroup(g domain.GroupID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g] = struct{}{}
}

func (c *client) removeGroup(g domain.GroupID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, g)
}

func (c *client) groupList() []domain.GroupID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.GroupID, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	return out
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	user := ctl.svc.Users.GetOrCreate(sid)
	cl := &client{
		sid:    sid,
		user:   user.ID,
		conn:   conn,
		groups: make(map[domain.GroupID]struct{}),
	}

	ctl.mu.Lock()
	if old, ok := ctl.clients[sid]; ok {
		old.conn.Close()
	}
	ctl.clients[sid] = cl
	ctl.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, cl)
		cancel()
	}()
}

// onDisconnect unsubscribes the connection everywhere and issues the implicit
// LEAVE_CALL per joined group; presence just goes stale on its own. Cleanup
// is scoped to this connection: when a reconnect under the same token already
// replaced it, the channel entries and call membership belong to the
// successor and stay intact.
func (ctl *Controller) onDisconnect(cl *client) {
	ctl.mu.Lock()
	current := false
	if cur, ok := ctl.clients[cl.sid]; ok && cur == cl {
		delete(ctl.clients, cl.sid)
		current = true
	}
	ctl.mu.Unlock()

	groups := cl.groupList()
	for _, g := range groups {
		ctl.svc.Channel.UnsubscribeConn(g, cl.sid, cl.conn)
	}
	if current {
		ctl.svc.Calls.HandleDisconnect(cl.user, groups)
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Int("groups", len(groups)).Bool("superseded", !current).Msg("disconnect cleanup done")
}

// applyBackpressure kicks subscribers whose buffers stayed full, per policy.
func (ctl *Controller) applyBackpressure(res core.PublishResult) {
	if ctl.svc.Policy == nil {
		return
	}
	for _, sid := range res.Dropped {
		switch ctl.svc.Policy.OnBackPressure(sid) {
		case app.KickSubscriber:
			ctl.mu.RLock()
			cl, ok := ctl.clients[sid]
			ctl.mu.RUnlock()
			if ok {
				log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("kicking slow subscriber")
				cl.conn.Close()
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
