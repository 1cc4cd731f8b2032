package replay

import (
	"sync/atomic"
	"testing"
	"time"
)

// TestClockDriverRunsAndStops tests the lifecycle: ticks arrive while
// running, none after Stop.
func TestClockDriverRunsAndStops(t *testing.T) {
	var ticks atomic.Int64
	d := NewClockDriver(func(elapsed time.Duration) bool {
		if elapsed < 0 || elapsed > maxElapsed {
			t.Errorf("Elapsed out of range: %v", elapsed)
		}
		ticks.Add(1)
		return true
	})

	d.Start()
	time.Sleep(100 * time.Millisecond)
	d.Stop()

	got := ticks.Load()
	if got == 0 {
		t.Fatal("Expected ticks while running")
	}

	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != got {
		t.Error("Expected no ticks after Stop")
	}
	if d.Running() {
		t.Error("Expected not running after Stop")
	}
}

// TestClockDriverSelfStop tests that the loop exits when advance reports
// playback finished, and that a later Start works again.
func TestClockDriverSelfStop(t *testing.T) {
	var ticks atomic.Int64
	d := NewClockDriver(func(time.Duration) bool {
		return ticks.Add(1) < 3
	})

	d.Start()
	deadline := time.Now().Add(time.Second)
	for d.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.Running() {
		t.Fatal("Expected loop to stop itself")
	}
	if got := ticks.Load(); got != 3 {
		t.Errorf("Expected exactly 3 ticks, got %d", got)
	}

	// Restart after self-stop.
	d.Start()
	if !d.Running() {
		t.Error("Expected restart to work")
	}
	d.Stop()
}

// TestClockDriverIdempotent tests repeated Start/Stop calls.
func TestClockDriverIdempotent(t *testing.T) {
	d := NewClockDriver(func(time.Duration) bool { return true })
	d.Stop() // stop before start is a no-op
	d.Start()
	d.Start() // second start is a no-op
	d.Stop()
	d.Stop()
	if d.Running() {
		t.Error("Expected stopped")
	}
}
