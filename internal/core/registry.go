package core

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Session binds one live connection to an authenticated username.
type Session struct {
	ConnectionID string
	Username     string
	ConnectedAt  time.Time
}

// PresenceChange describes a registry mutation.
// Transition is set when the username went from zero to one sessions or back.
type PresenceChange struct {
	Username   string
	Online     bool
	Transition bool
}

// Registry tracks which connections are authenticated as which user.
// A username may hold several sessions; a connection holds at most one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[string]map[string]struct{}
	listener func(PresenceChange)
	now      func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// OnChange installs the callback invoked after every bind or unbind.
// The callback runs without the registry lock held.
func (r *Registry) OnChange(fn func(PresenceChange)) {
	r.mu.Lock()
	r.listener = fn
	r.mu.Unlock()
}

// Bind associates connID with username. Binding the same pair twice is a
// no-op; binding a connection to a different username moves it.
func (r *Registry) Bind(connID, username string) {
	r.mu.Lock()
	var changes []PresenceChange
	if cur, ok := r.sessions[connID]; ok {
		if cur.Username == username {
			r.mu.Unlock()
			return
		}
		changes = append(changes, r.unbindLocked(connID, cur.Username))
	}

	conns, ok := r.byUser[username]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[username] = conns
	}
	conns[connID] = struct{}{}
	r.sessions[connID] = Session{ConnectionID: connID, Username: username, ConnectedAt: r.now()}
	changes = append(changes, PresenceChange{Username: username, Online: true, Transition: len(conns) == 1})
	listener := r.listener
	r.mu.Unlock()

	notify(listener, changes)
}

// Unbind removes the session held by connID. Unknown connections are ignored.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	cur, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	change := r.unbindLocked(connID, cur.Username)
	listener := r.listener
	r.mu.Unlock()

	notify(listener, []PresenceChange{change})
}

func (r *Registry) unbindLocked(connID, username string) PresenceChange {
	delete(r.sessions, connID)
	conns := r.byUser[username]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, username)
		return PresenceChange{Username: username, Online: false, Transition: true}
	}
	return PresenceChange{Username: username, Online: true}
}

func notify(listener func(PresenceChange), changes []PresenceChange) {
	if listener == nil {
		return
	}
	for _, ch := range changes {
		listener(ch)
	}
}

// Resolve returns the connection ids bound to username, sorted.
func (r *Registry) Resolve(username string) []string {
	r.mu.RLock()
	ids := lo.Keys(r.byUser[username])
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Session returns the session bound to connID.
func (r *Registry) Session(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// OnlineUsernames returns every username with at least one session, sorted.
func (r *Registry) OnlineUsernames() []string {
	r.mu.RLock()
	names := lo.Keys(r.byUser)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// ConnectionIDs returns every authenticated connection id.
func (r *Registry) ConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// IsOnline reports whether username has at least one session.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[username]
	return ok
}
