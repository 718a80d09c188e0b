// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the time operations used by the periodic loops so tests can
// drive them deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker that delivers ticks with period d.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers ticks of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually advanced clock for testing. Advance moves the clock
// forward and fires any tickers or After waiters whose deadline has passed.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
	waiters []*mockWaiter
}

// NewMockClock creates a MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that fires once the clock has been advanced past d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &mockWaiter{ch: make(chan time.Time, 1), deadline: c.now.Add(d)}
	if d <= 0 {
		w.ch <- c.now
		w.done = true
	}
	c.waiters = append(c.waiters, w)
	return w.ch
}

// NewTicker creates a MockTicker registered with this clock.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{ch: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d and fires expired tickers and waiters.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*MockTicker(nil), c.tickers...)
	waiters := append([]*mockWaiter(nil), c.waiters...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fireUpTo(now)
	}
	for _, w := range waiters {
		w.fireIfDue(now)
	}
}

type mockWaiter struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	done     bool
}

func (w *mockWaiter) fireIfDue(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || now.Before(w.deadline) {
		return
	}
	w.done = true
	select {
	case w.ch <- now:
	default:
	}
}

// MockTicker is a manually driven ticker for testing.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// C returns the tick channel.
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop turns off the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Trigger delivers a tick carrying the given time, regardless of deadlines.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) fireUpTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	// The channel holds one tick, matching time.Ticker's behaviour of
	// dropping ticks for slow receivers.
	for !now.Before(t.next) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}
