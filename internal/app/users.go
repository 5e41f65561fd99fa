package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/core"
	"github.com/teamhub/callwire/internal/domain"
)

// UserRegistry maps client tokens to user meta. Display names ride along in
// callerName fields; identity itself is decided before requests get here.
type UserRegistry struct {
	mu    sync.RWMutex
	users map[core.SessionID]*domain.User
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[core.SessionID]*domain.User)}
}

func (r *UserRegistry) GetOrCreate(sid core.SessionID) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sid]; ok {
		return u
	}
	u := domain.NewGuest(domain.UserID(sid))
	r.users[sid] = u
	log.Info().Str("module", "app.users").Str("sid", string(sid)).Msg("created new user")
	return u
}

func (r *UserRegistry) Rename(sid core.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sid]
	if !ok {
		u = domain.NewGuest(domain.UserID(sid))
		r.users[sid] = u
	}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.users").Str("sid", string(sid)).Str("username", name).Msg("updated username")
	return nil
}
