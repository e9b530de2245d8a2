package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// clockState is the lifecycle of a session clock: Idle until Start, Running
// while ticking, Expired once the counter reaches zero.
type clockState int32

const (
	clockIdle clockState = iota
	clockRunning
	clockExpired
)

// sessionClock is the single countdown owned by a session. It decrements once
// per tick, floored at zero, and fires its expiry callback exactly once. There
// is no pause/resume; Stop is called only on session teardown or submission.
type sessionClock struct {
	remaining atomic.Int64
	state     atomic.Int32

	interval time.Duration
	onExpire func()

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// expired is the dedicated one-shot gate: the Running -> Expired
	// transition must fire the callback at most once even if Stop races the
	// final tick.
	expired atomic.Bool
}

// newSessionClock creates a clock with the given budget in whole seconds.
// interval is the tick period, one second in production; tests inject a
// shorter one.
func newSessionClock(seconds int, interval time.Duration, onExpire func()) *sessionClock {
	if interval <= 0 {
		interval = time.Second
	}
	c := &sessionClock{
		interval: interval,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if seconds < 0 {
		seconds = 0
	}
	c.remaining.Store(int64(seconds))
	return c
}

// Start transitions Idle -> Running and begins ticking. A zero budget expires
// on the first tick rather than synchronously, so the caller finishes
// admission before the automatic submission runs.
func (c *sessionClock) Start() {
	if !c.state.CompareAndSwap(int32(clockIdle), int32(clockRunning)) {
		return
	}

	go c.run()
}

func (c *sessionClock) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
		}
	}
}

// tick decrements the counter and reports whether the clock expired.
func (c *sessionClock) tick() bool {
	remaining := c.remaining.Load()
	if remaining > 0 {
		remaining = c.remaining.Add(-1)
	}
	if remaining > 0 {
		return false
	}

	if c.expired.CompareAndSwap(false, true) {
		c.state.Store(int32(clockExpired))
		if c.onExpire != nil {
			c.onExpire()
		}
	}
	return true
}

// Remaining returns the current counter in whole seconds.
func (c *sessionClock) Remaining() int {
	return int(c.remaining.Load())
}

// Expired reports whether the Running -> Expired transition has fired.
func (c *sessionClock) Expired() bool {
	return c.expired.Load()
}

// Stop cancels ticking without firing expiry. Safe to call multiple times and
// concurrently with the final tick.
func (c *sessionClock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
