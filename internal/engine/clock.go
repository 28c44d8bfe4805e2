package engine

import (
	"sync/atomic"

	"github.com/roach88/bowtie/internal/cases"
)

// Clock hands out Seq numbers in dispatch order.
//
// The first call to Next returns 1. Values are strictly increasing and never
// reused, and a Seq is only drawn when a case is actually dispatched, so
// filtered cases leave no gaps.
//
// Thread-safety: safe for concurrent use, though the engine only calls Next
// from its dispatch loop.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next Seq is start+1.
func NewClockAt(start cases.Seq) *Clock {
	c := &Clock{}
	c.seq.Store(int64(start))
	return c
}

// Next returns the next Seq.
func (c *Clock) Next() cases.Seq {
	return cases.Seq(c.seq.Add(1))
}

// Current returns the last Seq handed out, or the starting point if none was.
func (c *Clock) Current() cases.Seq {
	return cases.Seq(c.seq.Load())
}
