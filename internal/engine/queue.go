package engine

// signal is a coalescing wake-up channel.
//
// Any number of Notify calls between two receives collapse into one pending
// wake-up, so a burst of triggers costs a single replay pass.
type signal struct {
	ch chan struct{} // buffered, size 1
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

// Notify records a pending wake-up. Never blocks.
func (s *signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns the channel to select on.
func (s *signal) Wait() <-chan struct{} {
	return s.ch
}
