package countdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stemsi/exam-engine/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func waitDone(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.exited():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler goroutine did not exit")
	}
}

func TestScheduler_ExpiresOnceAtDeadline(t *testing.T) {
	clk := clock.NewManual(epoch)
	var fired atomic.Int32

	s := Start(clk, 5*time.Second, func() { fired.Add(1) })
	assert.Equal(t, 5, s.remaining())

	clk.Advance(4 * time.Second)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 1, s.remaining())

	clk.Advance(1 * time.Second)
	waitDone(t, s)
	assert.Equal(t, int32(1), fired.Load())
	assert.True(t, s.expired())
	assert.Equal(t, 0, s.remaining())

	clk.Advance(10 * time.Second)
	assert.Equal(t, int32(1), fired.Load())
}

func TestScheduler_CancelIsSynchronous(t *testing.T) {
	clk := clock.NewManual(epoch)
	var fired atomic.Int32

	s := Start(clk, 3*time.Second, func() { fired.Add(1) })
	clk.Advance(time.Second)

	require.True(t, s.Cancel())
	assert.False(t, s.Cancel(), "second cancel is a no-op")

	clk.Advance(10 * time.Second)
	waitDone(t, s)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, s.expired())
}

func TestScheduler_ZeroRemainingExpiresImmediately(t *testing.T) {
	clk := clock.NewManual(epoch)
	var fired atomic.Int32

	s := Start(clk, 0, func() { fired.Add(1) })
	waitDone(t, s)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.Cancel(), "cannot cancel after expiry")
}

func TestScheduler_CancelFromExpiryCallback(t *testing.T) {
	clk := clock.NewManual(epoch)
	var s *Scheduler
	ready := make(chan struct{})
	var cancelled atomic.Bool

	s = Start(clk, time.Second, func() {
		<-ready
		cancelled.Store(s.Cancel())
	})
	close(ready)
	clk.Advance(time.Second)

	waitDone(t, s)
	assert.False(t, cancelled.Load())
}

func TestGuard_ExpiryAtMostOnceAcrossRecreation(t *testing.T) {
	clk := clock.NewManual(epoch)
	var guard Guard
	var submits atomic.Int32
	onExpire := guard.Wrap(func() { submits.Add(1) })

	// Resume three times, each time replacing the previous scheduler with one
	// built from the remaining wall-clock time.
	deadline := epoch.Add(10 * time.Second)
	var last *Scheduler
	for i := 0; i < 3; i++ {
		if last != nil {
			last.Cancel()
		}
		last = Start(clk, deadline.Sub(clk.Now()), onExpire)
		clk.Advance(2 * time.Second)
	}

	// A stale scheduler that was never cancelled also races for expiry.
	stale := Start(clk, deadline.Sub(clk.Now()), onExpire)

	clk.Advance(10 * time.Second)
	waitDone(t, last)
	waitDone(t, stale)

	assert.Equal(t, int32(1), submits.Load())
	assert.True(t, guard.hasFired())
}
