package domain

import (
	"sync/atomic"
	"time"
)

// Clock hands out epoch millisecond timestamps that strictly increase, even
// when the wall clock stalls or steps back.
type Clock struct {
	last int64
	now  func() time.Time
}

// NewClock returns a Clock reading from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a timestamp greater than every value returned or observed so far.
func (c *Clock) Next() int64 {
	for {
		now := c.now().UnixMilli()
		last := atomic.LoadInt64(&c.last)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&c.last, last, now) {
			return now
		}
	}
}

// Observe raises the floor so later calls to Next exceed ts.
func (c *Clock) Observe(ts int64) {
	for {
		last := atomic.LoadInt64(&c.last)
		if ts <= last {
			return
		}
		if atomic.CompareAndSwapInt64(&c.last, last, ts) {
			return
		}
	}
}
