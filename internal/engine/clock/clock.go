// Package clock issues the logical compilation timestamps that version every
// cached fact in a session. No component compares modules by wall-clock time.
package clock

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Timestamp is an opaque, totally ordered compilation timestamp.
type Timestamp uint64

// Zero is the value carried by facts that were never computed. It is smaller
// than Base and every ticked timestamp.
const Zero Timestamp = 0

const base Timestamp = 1

// Less reports whether t was issued before other.
func (t Timestamp) Less(other Timestamp) bool {
	return t < other
}

// IsZero reports whether t was never set.
func (t Timestamp) IsZero() bool {
	return t == Zero
}

func (t Timestamp) String() string {
	return fmt.Sprintf("ts#%d", uint64(t))
}

// Clock hands out strictly increasing timestamps. The zero value is ready to use.
type Clock struct {
	last atomic.Uint64
}

// New returns a clock whose first tick is greater than Base.
func New() *Clock {
	c := &Clock{}
	c.last.Store(uint64(base))
	return c
}

// Tick returns a timestamp strictly greater than every value returned so far.
// Exhausting the uint64 range is treated as a programming error: resetting
// would hand out values smaller than already-issued ones.
func (c *Clock) Tick() Timestamp {
	for {
		cur := c.last.Load()
		if cur < uint64(base) {
			// zero-value clock
			if c.last.CompareAndSwap(cur, uint64(base)+1) {
				return base + 1
			}
			continue
		}
		if cur == math.MaxUint64 {
			panic("clock: compilation timestamp space exhausted")
		}
		if c.last.CompareAndSwap(cur, cur+1) {
			return Timestamp(cur + 1)
		}
	}
}

// Base returns the sentinel used for read-only traversals. It is smaller than
// any ticked value, so a check run at Base never invalidates a cached fact.
func (c *Clock) Base() Timestamp {
	return base
}

// Current returns the most recently issued timestamp, or Base if none was issued.
func (c *Clock) Current() Timestamp {
	cur := c.last.Load()
	if cur < uint64(base) {
		return base
	}
	return Timestamp(cur)
}
