package session

import "sync"

// Registry tracks live sessions. Different sessions are fully
// independent and evaluate in parallel; the registry itself is
// lock-free for lookups.
type Registry struct {
	sessions sync.Map // session ID -> *Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the session with the given ID, creating it on
// first use. The boolean reports whether the session already existed.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Session), true
	}
	v, loaded := r.sessions.LoadOrStore(id, NewWithID(id))
	return v.(*Session), loaded
}

// Get returns the session with the given ID, or false.
func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Remove drops a session from the registry. The session object stays
// valid for holders of a reference; its decision log is not erased.
func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

// Range calls fn for every live session until fn returns false.
func (r *Registry) Range(fn func(*Session) bool) {
	r.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}
