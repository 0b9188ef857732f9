package registry

import "sync"

// Handle is an opaque reference to one live connection. A handle is bound
// to exactly one user for its whole lifetime; the transport layer is the
// only place that touches the underlying socket.
type Handle interface {
	ID() string
	Deliver(event string, data any)
}

// Registry maps a user to the set of their live connection handles.
// Multiple handles per user (multi-device) are expected. The registry is
// single-process, in-memory state shared by every connection goroutine, so
// every method is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]Handle // userID -> handleID -> handle
	byHandle map[string]string            // handleID -> userID, for O(1) cleanup
}

func New() *Registry {
	return &Registry{
		byUser:   make(map[string]map[string]Handle),
		byHandle: make(map[string]string),
	}
}

// Bind registers h under userID. Rebinding the same handle to the same user
// is a no-op. A handle stays with its first user for life: an attempt to
// bind it to a different user is refused, otherwise the old user's set
// would keep a stale entry with no reverse index pointing at it.
func (r *Registry) Bind(userID string, h Handle) {
	if userID == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.byHandle[h.ID()]; ok && owner != userID {
		return
	}
	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]Handle)
		r.byUser[userID] = m
	}
	m[h.ID()] = h
	r.byHandle[h.ID()] = userID
}

// Unbind removes h from its owning user's set, dropping the user entry when
// the set becomes empty. Unknown handles are ignored.
func (r *Registry) Unbind(h Handle) {
	if h == nil {
		return
	}
	r.UnbindID(h.ID())
}

// UnbindID is Unbind by handle identifier; useful during disconnect cleanup
// when the handle itself may already be torn down.
func (r *Registry) UnbindID(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byHandle[handleID]
	if !ok {
		return
	}
	delete(r.byHandle, handleID)
	if m := r.byUser[userID]; m != nil {
		delete(m, handleID)
		if len(m) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// HandlesOf returns the live handles for userID. An empty slice means the
// user is offline; it is never an error.
func (r *Registry) HandlesOf(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	out := make([]Handle, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}

// UserOf returns the user a handle is bound to, if any.
func (r *Registry) UserOf(handleID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byHandle[handleID]
	return u, ok
}

// IsOnline reports whether userID has at least one live handle.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// AllOnlineUserIDs returns every user with at least one live handle.
func (r *Registry) AllOnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// AllHandles snapshots every live handle across all users.
func (r *Registry) AllHandles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.byHandle))
	for _, m := range r.byUser {
		for _, h := range m {
			out = append(out, h)
		}
	}
	return out
}

// DeliverToUser pushes an event to every live handle of userID. Offline
// users are silently skipped.
func (r *Registry) DeliverToUser(userID, event string, data any) {
	for _, h := range r.HandlesOf(userID) {
		h.Deliver(event, data)
	}
}

// DeliverToAll pushes an event to every connected session system-wide.
func (r *Registry) DeliverToAll(event string, data any) {
	for _, h := range r.AllHandles() {
		h.Deliver(event, data)
	}
}
