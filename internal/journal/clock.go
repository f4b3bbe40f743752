package journal

import "sync/atomic"

// Clock is the monotonic sequence source for journal records.
//
// Every appended record is stamped with a strictly increasing seq, so list
// order is insertion order even when wall-clock timestamps collide. Replay
// orders by timestamp first; Journal.Append keeps timestamps from going
// backwards so both orders agree.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used on Init to resume after the highest persisted seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
