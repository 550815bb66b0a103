package state

import "sync"

// State is a current-value stream: it always holds a latest value and fans
// every update out to subscribers, who also receive the current value on
// subscribe. All engine-owned state is published through these; consumers only
// ever see copies, never the owning component's internals.
type State[T any] struct {
	mu   sync.Mutex
	val  T
	subs map[int]func(T)
	next int
}

func NewState[T any](initial T) *State[T] {
	return &State[T]{val: initial, subs: make(map[int]func(T))}
}

func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

// Set stores v and notifies subscribers synchronously, in the caller's turn.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	s.val = v
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn, fires it immediately with the current value and
// returns a cancel func.
func (s *State[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	cur := s.val
	s.mu.Unlock()

	fn(cur)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Events is a fire-and-forget stream with no retained value, used for
// failure notifications.
type Events[T any] struct {
	mu   sync.Mutex
	subs map[int]func(T)
	next int
}

func NewEvents[T any]() *Events[T] {
	return &Events[T]{subs: make(map[int]func(T))}
}

func (e *Events[T]) Publish(v T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (e *Events[T]) Subscribe(fn func(T)) (cancel func()) {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}
