package replay

import (
	"sync"
	"time"
)

const (
	// defaultTick approximates one display refresh at 60 Hz.
	defaultTick = 16 * time.Millisecond

	// maxElapsed clamps the per-tick delta so a suspended or backgrounded
	// process resumes smoothly instead of jumping.
	maxElapsed = 250 * time.Millisecond
)

// ClockDriver advances playback using elapsed wall time, decoupling playback
// progress from however often the loop actually runs. It only runs while
// playback is active: started on play, stopped on pause or mode change, and
// stopping cancels the pending tick so a stale loop can never resume after
// teardown.
type ClockDriver struct {
	// advance receives the clamped elapsed time each tick and reports
	// whether the loop should keep running.
	advance func(elapsed time.Duration) bool

	tick time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewClockDriver creates a stopped driver calling advance each tick.
func NewClockDriver(advance func(elapsed time.Duration) bool) *ClockDriver {
	return &ClockDriver{advance: advance, tick: defaultTick}
}

// Start launches the tick loop. A no-op if already running.
func (d *ClockDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	d.stop = stop
	d.done = done
	go d.run(stop, done)
}

// Stop cancels the tick loop and waits for it to exit. A no-op if not
// running. Must not be called from inside the advance callback; the loop
// stops itself when advance returns false instead.
func (d *ClockDriver) Stop() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the tick loop is active.
func (d *ClockDriver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *ClockDriver) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if elapsed < 0 {
				elapsed = 0
			}
			if elapsed > maxElapsed {
				elapsed = maxElapsed
			}
			if !d.advance(elapsed) {
				// Playback finished; detach so a later Start works.
				d.mu.Lock()
				if d.stop == stop {
					d.stop, d.done = nil, nil
				}
				d.mu.Unlock()
				return
			}
		}
	}
}
