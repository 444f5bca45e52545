package sqlite

import "sync/atomic"

// clock is a monotonic logical clock. Every committed document is stamped
// with the next value, so ORDER BY seq replays insertion order.
type clock struct {
	seq atomic.Int64
}

// newClockAt resumes a clock from the highest seq already stored.
func newClockAt(start int64) *clock {
	c := &clock{}
	c.seq.Store(start)
	return c
}

func (c *clock) next() int64 {
	return c.seq.Add(1)
}

func (c *clock) current() int64 {
	return c.seq.Load()
}
