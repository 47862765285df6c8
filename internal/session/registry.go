package session

import "sync"

// Registry is the live-session map: session id to controller. Only the
// session manager mutates it; collaborators read it to send on an
// existing connection. Replacement is a single atomic swap so two
// entries never exist for one id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Controller)}
}

// Get returns the live controller for the session, if any.
func (r *Registry) Get(id int64) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Swap installs the controller for the session and returns the
// displaced one. The caller destroys the old controller; by the time
// Swap returns it is no longer reachable through the registry.
func (r *Registry) Swap(id int64, c *Controller) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.sessions[id]
	r.sessions[id] = c
	return old
}

// Remove deletes the entry for the session, but only if it still maps
// to the given controller. A stale controller being destroyed late
// must not evict its successor.
func (r *Registry) Remove(id int64, c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == c {
		delete(r.sessions, id)
	}
}

// All returns a snapshot of the live controllers.
func (r *Registry) All() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		out = append(out, c)
	}
	return out
}
