// Package timing provides the delay sources used while talking to the sensor.
// Busy spins on the monotonic clock for short delays; Fake advances virtual
// time so waveform tests run instantly.
package timing

import (
	"runtime"
	"time"
)

// spinBelow is the longest delay Busy spins for. Longer delays sleep first
// and spin the remainder, so a 250ms idle hold does not burn a core.
const spinBelow = 2 * time.Millisecond

// Busy is a monotonic delay source with best-effort accuracy.
// There is no upper bound on jitter: the scheduler may still preempt the spin.
type Busy struct{}

// Delay blocks for at least d.
func (Busy) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	if d > spinBelow {
		time.Sleep(d - spinBelow)
	}
	for time.Since(start) < d {
	}
}

// Fake is a virtual delay source. Delay returns immediately after advancing
// the virtual clock. Not safe for concurrent use.
type Fake struct {
	now   time.Duration
	calls int
}

// NewFake returns a Fake starting at zero.
func NewFake() *Fake {
	return &Fake{}
}

// Delay advances virtual time by d.
func (f *Fake) Delay(d time.Duration) {
	if d > 0 {
		f.now += d
	}
	f.calls++
}

// Elapsed returns the virtual time since creation.
func (f *Fake) Elapsed() time.Duration {
	return f.now
}

// Calls returns how many times Delay was called.
func (f *Fake) Calls() int {
	return f.calls
}

// Pin locks the calling goroutine to its OS thread for the duration of a
// capture and returns the function that releases it.
func Pin() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
