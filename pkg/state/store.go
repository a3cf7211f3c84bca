package state

import (
	"sync"

	"github.com/vanderheijden86/seltree/pkg/debug"
)

// Store owns the current State and serializes transitions, so background
// fetch completions and UI events cannot interleave inside a transition.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

// NewStore creates a store holding an empty state.
func NewStore() *Store {
	return &Store{listeners: make(map[int]func(State))}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the resulting state together with the
// reducer's explanation for a dropped action, if any. Listeners run after
// the lock is released and only when the state changed.
func (s *Store) Dispatch(a Action) (State, error) {
	s.mu.Lock()
	prev := s.state
	next, err := Reduce(prev, a)
	s.state = next
	var notify []func(State)
	if next.epoch != prev.epoch {
		notify = make([]func(State), 0, len(s.listeners))
		for _, fn := range s.listeners {
			notify = append(notify, fn)
		}
	}
	s.mu.Unlock()

	debug.LogIf(err != nil, "state: %T dropped: %v", a, err)
	for _, fn := range notify {
		fn(next)
	}
	return next, err
}

// Subscribe registers fn to be called after every effective transition and
// returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]func(State))
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
