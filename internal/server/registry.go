// Package server implements the session registry: the mutex-guarded
// username-to-channel mapping that enforces at most one active session per
// username.
package server

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// channel is the send primitive a session delivers frames through. Send
// reports whether the payload was queued; a false return means the peer is
// gone or its buffer is full, and the caller decides whether that matters.
type channel interface {
	Send(payload []byte) bool
}

// Session binds one username to one live channel. The ID distinguishes a
// session from its replacement after a re-login, so a stale channel closing
// late cannot evict the binding that superseded it.
type Session struct {
	ID       string
	Username string
	ch       channel
}

// Send queues a payload on the session's channel.
func (s *Session) Send(payload []byte) bool {
	return s.ch.Send(payload)
}

// Registry maps each username to its single active session. Registration,
// lookup, and snapshot are called from independently scheduled connection
// goroutines, so every access goes through the mutex. State is
// process-lifetime only; every client re-authenticates after a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Bind registers username on ch, replacing any prior binding for that
// username. The replaced channel is not force-closed; it is left to time
// out on its own and its eventual Unbind is a no-op.
func (r *Registry) Bind(username string, ch channel) *Session {
	s := &Session{ID: uuid.NewString(), Username: username, ch: ch}

	r.mu.Lock()
	replaced := r.sessions[username]
	r.sessions[username] = s
	r.mu.Unlock()

	if replaced != nil {
		logrus.WithFields(logrus.Fields{
			"username":    username,
			"old_session": replaced.ID,
			"new_session": s.ID,
		}).Info("Replacing active session")
	}
	return s
}

// Unbind removes the binding for s if s is still the current session for
// its username. It reports whether a binding was removed.
func (r *Registry) Unbind(s *Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.Username]
	if !ok || current.ID != s.ID {
		return false
	}
	delete(r.sessions, s.Username)
	return true
}

// Lookup returns the active session for username, if any.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	return s, ok
}

// Online returns the sorted usernames currently holding a session.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.sessions))
	for username := range r.sessions {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// snapshot returns the current sessions without holding the lock during
// any subsequent sends.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
