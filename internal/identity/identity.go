// Package identity supplies the signed-in user id and notifies on changes.
package identity

import "sync"

// Provider reports the current identity ("" when signed out) and calls
// back on every transition.
type Provider interface {
	Current() string
	// OnChange registers fn and returns a function that unregisters it.
	OnChange(fn func(id string)) func()
}

// Static is a Provider driven explicitly through SignIn and SignOut.
type Static struct {
	mu        sync.Mutex
	current   string
	callbacks map[int]func(string)
	nextID    int
}

// NewStatic creates a provider signed in as id, or signed out when id is "".
func NewStatic(id string) *Static {
	return &Static{current: id, callbacks: make(map[int]func(string))}
}

func (s *Static) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Static) OnChange(fn func(id string)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.callbacks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

// SignIn switches to id and notifies. Signing in as the current id is a no-op.
func (s *Static) SignIn(id string) {
	s.set(id)
}

// SignOut clears the identity and notifies.
func (s *Static) SignOut() {
	s.set("")
}

func (s *Static) set(id string) {
	s.mu.Lock()
	if s.current == id {
		s.mu.Unlock()
		return
	}
	s.current = id
	callbacks := make([]func(string), 0, len(s.callbacks))
	for _, fn := range s.callbacks {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(id)
	}
}
