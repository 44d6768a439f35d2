// Package notify provides Signal, a deduplicated fan-out notifier used to
// tell observers that a filesystem entry or the terminal changed, without
// polling.
//
// Listeners are identified by reference: attaching the same listener twice
// registers it once. Use [Func] to wrap a plain function in a listener with
// pointer identity.
package notify

import "sync"

// Listener is notified each time a [Signal] fires.
//
// A Signal keys its set by listener, so implementations must be
// comparable; use pointer receivers. A listener whose dynamic type is a
// func, map or slice makes Attach panic. Wrap such values with [Func].
type Listener interface {
	Changed()
}

// FuncListener adapts a function to [Listener]. Identity is the pointer
// returned by [Func], not the wrapped function.
type FuncListener struct {
	fn func()
}

// Func returns a new listener that calls fn.
func Func(fn func()) *FuncListener {
	return &FuncListener{fn: fn}
}

// Changed calls the wrapped function.
func (f *FuncListener) Changed() { f.fn() }

// Signal is a set of listeners. The zero value is ready to use. Safe for
// concurrent use.
type Signal struct {
	mu        sync.Mutex
	listeners map[Listener]struct{}
}

// Attach adds l to the set. Attaching an already attached listener is a
// no-op.
func (s *Signal) Attach(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[Listener]struct{})
	}
	s.listeners[l] = struct{}{}
}

// Detach removes l from the set. Detaching an unknown listener is a no-op.
func (s *Signal) Detach(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

// Clear detaches every listener.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = nil
}

// Len returns the number of attached listeners.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Signal invokes every currently attached listener exactly once, in no
// particular order. The set is snapshotted first, so listeners may attach
// or detach (themselves included) while being dispatched. A listener
// detached by an earlier listener in the same dispatch is still called.
func (s *Signal) Signal() {
	s.mu.Lock()
	snapshot := make([]Listener, 0, len(s.listeners))
	for l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.Unlock()

	for _, l := range snapshot {
		l.Changed()
	}
}
