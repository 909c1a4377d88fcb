package session

import "sync"

// Registry is the in-memory map of live sessions. Membership changes are
// atomic: Add refuses duplicates, and Remove detaches the handle before any
// teardown runs so concurrent lookups never observe a half-stopped session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add inserts a session, failing with ErrSessionExists when the ID is taken.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	r.sessions[s.ID] = s
	return nil
}

// Get returns the live session for an ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove detaches and returns the session for an ID. The second return is
// false when no such session is registered.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Contains reports whether the exact handle is still registered. A rebuild
// scheduled before a stop uses this to notice the session is gone.
func (r *Registry) Contains(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[s.ID] == s
}

// List returns all live sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
