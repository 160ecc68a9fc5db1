package runtime

import (
	"meet-relay/domain"
	"sync"
)

// Registry maps a participant to its live session for one feature.
// There is at most one session per participant; Put supersedes the previous one.
type Registry struct {
	feature  domain.Feature
	sessions sync.Map // map participant -> *Session
}

func NewRegistry(feature domain.Feature) *Registry {
	return &Registry{feature: feature}
}

// Put registers the session and hands back the one it replaced, if any.
func (r *Registry) Put(s *Session) *Session {
	previous, loaded := r.sessions.Swap(s.UserID, s)
	if !loaded {
		return nil
	}
	return previous.(*Session)
}

func (r *Registry) Get(userID domain.UserID) (*Session, bool) {
	v, ok := r.sessions.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Remove unregisters the session only if it is still the current one,
// so a late cleanup never evicts a newer connection of the same participant.
func (r *Registry) Remove(s *Session) bool {
	return r.sessions.CompareAndDelete(s.UserID, s)
}

// Owns reports whether s is the registered session of its participant.
func (r *Registry) Owns(s *Session) bool {
	current, ok := r.Get(s.UserID)
	return ok && current == s
}

func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sessions returns a snapshot of every live session.
func (r *Registry) Sessions() []*Session {
	var out []*Session
	r.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	return out
}
