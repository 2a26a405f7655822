package testutil

import (
	"sync"
	"time"
)

// ManualClock is a deterministic time source for driver tests.
//
// Time only moves when Advance is called. Tickers created with NewTicker
// fire from Advance, once per elapsed period, with a blocking send, so a
// test knows the runner has received every tick by the time Advance
// returns.
//
// Thread-safety: Now and NewTicker are safe for concurrent use. Advance
// must be called from a single test goroutine.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

type manualTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker returns a channel that receives the manual time every period,
// and a function that stops it. Non-positive periods panic, like
// time.NewTicker.
func (c *ManualClock) NewTicker(period time.Duration) (<-chan time.Time, func()) {
	if period <= 0 {
		panic("testutil: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTicker{
		period: period,
		next:   c.now.Add(period),
		ch:     make(chan time.Time),
	}
	c.tickers = append(c.tickers, t)

	stop := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
	return t.ch, stop
}

// Advance moves time forward by d, firing due tickers in time order.
// Each fire blocks until the receiver takes it.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *manualTicker
		for _, t := range c.tickers {
			if t.stopped || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		at := due.next
		c.now = at
		due.next = at.Add(due.period)
		ch := due.ch
		c.mu.Unlock()

		ch <- at
	}
}

// BlockUntilTickers waits until at least n unstopped tickers exist, so a
// test can Advance only after the code under test has started listening.
func (c *ManualClock) BlockUntilTickers(n int) {
	for {
		c.mu.Lock()
		active := 0
		for _, t := range c.tickers {
			if !t.stopped {
				active++
			}
		}
		c.mu.Unlock()

		if active >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}
