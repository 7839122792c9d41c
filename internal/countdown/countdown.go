// Package countdown runs the per-attempt timer.
package countdown

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stemsi/exam-engine/internal/clock"
)

// TickInterval is how often a running Scheduler checks its deadline.
const TickInterval = time.Second

type state int

const (
	stateRunning state = iota
	stateCancelled
	stateExpired
)

// Scheduler is a single-shot countdown. It ticks once per TickInterval and
// calls onExpire at most once when the deadline passes, unless cancelled first.
//
// The deadline is fixed at start from the clock, so a Scheduler created on
// resume with a recomputed remaining time stays aligned with wall-clock time.
type Scheduler struct {
	clock    clock.Clock
	deadline time.Time
	onExpire func()

	mu    sync.Mutex
	state state

	stop chan struct{}
	done chan struct{}
}

// Start arms a Scheduler that expires after remaining. A non-positive remaining
// expires right away without waiting for a tick.
func Start(c clock.Clock, remaining time.Duration, onExpire func()) *Scheduler {
	if remaining < 0 {
		remaining = 0
	}
	s := &Scheduler{
		clock:    c,
		deadline: c.Now().Add(remaining),
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if remaining == 0 {
		go func() {
			defer close(s.done)
			s.expire()
		}()
		return s
	}

	// The ticker exists before Start returns so no tick can be missed.
	go s.run(c.NewTicker(TickInterval))
	return s
}

func (s *Scheduler) run(ticker clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C():
			if s.clock.Now().Before(s.deadline) {
				continue
			}
			ticker.Stop()
			s.expire()
			return
		}
	}
}

func (s *Scheduler) expire() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	s.state = stateExpired
	s.mu.Unlock()

	if s.onExpire != nil {
		s.onExpire()
	}
}

// Cancel stops the countdown. It returns true if the Scheduler was still
// running; once it returns, onExpire will not be called by this Scheduler.
// Cancel is safe to call more than once and from within onExpire.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return false
	}
	s.state = stateCancelled
	close(s.stop)
	return true
}

// remaining returns the whole seconds left before expiry, floored at zero.
func (s *Scheduler) remaining() int {
	left := s.deadline.Sub(s.clock.Now())
	if left < 0 {
		return 0
	}
	return int(left / time.Second)
}

func (s *Scheduler) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateExpired
}

func (s *Scheduler) exited() <-chan struct{} {
	return s.done
}

// Guard makes an expiry signal idempotent across every Scheduler created for
// the same attempt.
type Guard struct {
	fired atomic.Bool
}

// Wrap returns a callback that runs fn only the first time any wrapped callback fires.
func (g *Guard) Wrap(fn func()) func() {
	return func() {
		if g.fired.CompareAndSwap(false, true) {
			fn()
		}
	}
}

func (g *Guard) hasFired() bool {
	return g.fired.Load()
}
