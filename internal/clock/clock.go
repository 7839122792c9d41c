// Package clock abstracts wall-clock time so attempt deadlines can be driven
// manually in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the attempt lifecycle.
// Production code uses Real; tests drive a Manual clock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Elapsed returns the time since start according to c, never negative.
func Elapsed(c Clock, start time.Time) time.Duration {
	d := c.Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns budget minus the time elapsed since start, floored at zero.
func Remaining(c Clock, start time.Time, budget time.Duration) time.Duration {
	left := budget - Elapsed(c, start)
	if left < 0 {
		return 0
	}
	return left
}

// RemainingSeconds is Remaining truncated to whole seconds.
func RemainingSeconds(c Clock, start time.Time, budget time.Duration) int {
	return int(Remaining(c, start, budget) / time.Second)
}

// Manual is a Clock that only moves when Advance is called.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		ch:     make(chan time.Time),
		quit:   make(chan struct{}),
		period: d,
		next:   m.now.Add(d),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the clock forward by d, delivering one tick per elapsed period
// to every live ticker. Each delivery blocks until the receiver takes it, so
// callers observe ticks in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t, at := m.earliestDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = at
		t.next = at.Add(t.period)
		m.mu.Unlock()

		t.deliver(at)
	}
}

// Set jumps the clock to t without delivering ticks.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
	for _, tk := range m.tickers {
		tk.next = t.Add(tk.period)
	}
}

func (m *Manual) earliestDue(target time.Time) (*manualTicker, time.Time) {
	var found *manualTicker
	var at time.Time
	live := m.tickers[:0]
	for _, t := range m.tickers {
		if t.stopped() {
			continue
		}
		live = append(live, t)
		if t.next.After(target) {
			continue
		}
		if found == nil || t.next.Before(at) {
			found, at = t, t.next
		}
	}
	m.tickers = live
	return found, at
}

type manualTicker struct {
	ch     chan time.Time
	period time.Duration
	next   time.Time

	mu   sync.Mutex
	done bool
	quit chan struct{}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	close(t.quit)
}

func (t *manualTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *manualTicker) deliver(at time.Time) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return
	}

	select {
	case t.ch <- at:
	case <-t.quit:
	}
}
