package services

import (
	"sync/atomic"
	"testing"
	"time"
)

const testTick = 2 * time.Millisecond

func TestSessionClockExpiresExactlyOnce(t *testing.T) {
	// Allotted duration 00:00:05: after five ticks the Expired transition
	// fires exactly once.
	var fires atomic.Int32
	expired := make(chan struct{})

	clock := newSessionClock(5, testTick, func() {
		fires.Add(1)
		close(expired)
	})
	clock.Start()
	defer clock.Stop()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("clock never expired")
	}

	// Give any erroneous extra tick a chance to fire again.
	time.Sleep(10 * testTick)

	if got := fires.Load(); got != 1 {
		t.Errorf("expiry fired %d times, want 1", got)
	}
	if clock.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", clock.Remaining())
	}
	if !clock.Expired() {
		t.Error("Expired() = false after expiry")
	}
}

func TestSessionClockCountsDown(t *testing.T) {
	clock := newSessionClock(1000, time.Hour, nil)
	clock.Start()
	defer clock.Stop()

	if got := clock.Remaining(); got != 1000 {
		t.Errorf("Remaining = %d before first tick, want 1000", got)
	}
}

func TestSessionClockZeroBudgetExpiresOnFirstTick(t *testing.T) {
	expired := make(chan struct{})
	clock := newSessionClock(0, testTick, func() { close(expired) })
	clock.Start()
	defer clock.Stop()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("zero-budget clock never expired")
	}
}

func TestSessionClockStopPreventsExpiry(t *testing.T) {
	var fires atomic.Int32
	clock := newSessionClock(2, 50*time.Millisecond, func() { fires.Add(1) })
	clock.Start()
	clock.Stop()

	time.Sleep(200 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("expiry fired %d times after Stop, want 0", got)
	}
}

func TestSessionClockStartIsOneShot(t *testing.T) {
	clock := newSessionClock(10, time.Hour, nil)
	clock.Start()
	clock.Start() // second Start must not spawn a second ticker
	clock.Stop()

	select {
	case <-clock.done:
	case <-time.After(time.Second):
		t.Fatal("clock goroutine did not exit after Stop")
	}
}
