package engine

// Clock stamps rule outputs with a strictly increasing sequence number.
//
// Output order is defined by Seq, never by wall-clock time, so two runs of
// the same rule set over the same input produce identical records.
//
// A Clock belongs to one SessionContext and restarts at zero on every
// activation.
type Clock struct {
	seq int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq
}

// Reset restarts the clock at 0.
func (c *Clock) Reset() {
	c.seq = 0
}
