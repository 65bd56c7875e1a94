// Package notify provides a broadcast change signal.
package notify

import "sync"

// Signal wakes every waiter on each Notify. Waiters call C(), block on the
// returned channel, and call C() again after waking.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal returns a ready Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify closes the current channel and installs a fresh one.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns the channel closed by the next Notify.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}
