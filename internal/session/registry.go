package session

import (
	"errors"
	"sync"
)

var ErrSessionActive = errors.New("a verification session is already active on this channel")

// Registry maps a client channel to its in-flight session. At most one
// session per channel; registration is an atomic check-and-insert.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) TryRegister(channelID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[channelID]; ok {
		return ErrSessionActive
	}
	r.sessions[channelID] = s
	return nil
}

// Release removes s if it is still the session registered for its channel.
func (r *Registry) Release(channelID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[channelID]; ok && cur == s {
		delete(r.sessions, channelID)
	}
}

func (r *Registry) Get(channelID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[channelID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
