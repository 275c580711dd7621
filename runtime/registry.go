package runtime

import (
	"fmt"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Registry is the source of truth for who is online. A connection
// appears here iff it has completed auth and is still readable and
// writable by the dispatcher.
//
// The registry is owned by the dispatcher goroutine and deliberately
// unlocked: every mutation and every read happens on that one goroutine.
// Nothing else may hold a reference.
type Registry struct {
	sessions map[domain.ConnID]*domain.Session
	names    map[string]domain.ConnID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*domain.Session),
		names:    make(map[string]domain.ConnID),
	}
}

// Admit adds a freshly authenticated session. A username already held
// by a live session is an auth error; the existing session is untouched.
func (r *Registry) Admit(session *domain.Session) error {
	if _, taken := r.names[session.Username]; taken {
		return fmt.Errorf("%w: %s", errors.ErrUsernameTaken, session.Username)
	}
	r.sessions[session.ConnID] = session
	r.names[session.Username] = session.ConnID
	return nil
}

// Remove deletes and returns the session for a handle, or nil if it was
// never admitted. Lookup after Remove always misses.
func (r *Registry) Remove(id domain.ConnID) *domain.Session {
	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	delete(r.names, session.Username)
	return session
}

// Lookup finds the session for a handle.
func (r *Registry) Lookup(id domain.ConnID) (*domain.Session, bool) {
	session, ok := r.sessions[id]
	return session, ok
}

// All snapshots the live sessions. The returned slice is the caller's
// to keep: admissions and removals during iteration don't touch it.
func (r *Registry) All() []*domain.Session {
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session)
	}
	return out
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	return len(r.sessions)
}
