package capture

import (
	"sync"
	"sync/atomic"
)

// Slot is a capacity-1 work queue that drops the newest item on overflow.
// At most one function runs at a time; TryGo never blocks.
//
// Each run gets its own done channel, so Wait may be called while TryGo
// keeps admitting work from another goroutine.
type Slot struct {
	mu      sync.Mutex
	running chan struct{} // closed when the current run returns; nil when idle
	dropped atomic.Uint64
}

// TryGo runs fn on a new goroutine if the slot is free and reports whether
// it did. When the slot is occupied fn is discarded and counted as dropped.
func (s *Slot) TryGo(fn func()) bool {
	s.mu.Lock()
	if s.running != nil {
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
	done := make(chan struct{})
	s.running = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = nil
			s.mu.Unlock()
			close(done)
		}()
		fn()
	}()
	return true
}

// Busy reports whether a function is currently running.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running != nil
}

// Dropped returns how many functions were discarded because the slot was busy.
func (s *Slot) Dropped() uint64 {
	return s.dropped.Load()
}

// Wait blocks until the function running at the time of the call, if any,
// returns.
func (s *Slot) Wait() {
	s.mu.Lock()
	done := s.running
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
