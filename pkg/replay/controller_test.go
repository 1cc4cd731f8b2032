package replay

import (
	"testing"
	"time"
)

const testInterval = 15 * time.Second

// newTestController builds a controller whose recording buffer holds n
// snapshots.
func newTestController(n int) *Controller {
	recorded := NewBuffer(200)
	for i := 0; i < n; i++ {
		recorded.Append(snap(i))
	}
	return NewController(recorded, NewBuffer(1), testInterval)
}

// TestControllerPlay tests play preconditions and transitions.
func TestControllerPlay(t *testing.T) {
	t.Run("No-op with fewer than two snapshots", func(t *testing.T) {
		c := newTestController(1)
		c.Play()
		if c.IsPlaying() {
			t.Error("Expected play to be a no-op with 1 snapshot")
		}
		if c.Mode() != ModeLive {
			t.Errorf("Expected mode live, got %v", c.Mode())
		}
	})

	t.Run("Exits live mode", func(t *testing.T) {
		c := newTestController(5)
		c.Play()
		if !c.IsPlaying() {
			t.Fatal("Expected playing")
		}
		if c.Mode() != ModeScrubbingRecorded {
			t.Errorf("Expected scrubbingRecorded, got %v", c.Mode())
		}
	})

	t.Run("Restarts from beginning at final index", func(t *testing.T) {
		c := newTestController(5)
		c.SeekTo(4)
		c.Play()
		if pos := c.Pos(); pos.Index != 0 || pos.Progress != 0 {
			t.Errorf("Expected restart at (0,0), got (%d,%f)", pos.Index, pos.Progress)
		}
		if !c.IsPlaying() {
			t.Error("Expected playing after restart")
		}
	})
}

// TestControllerSeek tests clamping and mode transitions on seek.
func TestControllerSeek(t *testing.T) {
	c := newTestController(10)

	c.SeekTo(99)
	if pos := c.Pos(); pos.Index != 9 {
		t.Errorf("Expected clamp to 9, got %d", pos.Index)
	}
	c.SeekTo(-3)
	if pos := c.Pos(); pos.Index != 0 {
		t.Errorf("Expected clamp to 0, got %d", pos.Index)
	}
	if c.Mode() != ModeScrubbingRecorded {
		t.Errorf("Expected seek to exit live, got %v", c.Mode())
	}
	if c.IsPlaying() {
		t.Error("Expected seek to pause")
	}
}

// TestControllerStepFromLive tests the step-from-live scenario: with 20
// recorded snapshots, stepping back from live lands on index 18 so the
// visible pair is "one interval ago → most recent".
func TestControllerStepFromLive(t *testing.T) {
	c := newTestController(20)

	c.StepBackward()

	if pos := c.Pos(); pos.Index != 18 || pos.Progress != 0 {
		t.Errorf("Expected (18, 0), got (%d, %f)", pos.Index, pos.Progress)
	}
	if c.Mode() != ModeScrubbingRecorded {
		t.Errorf("Expected scrubbingRecorded, got %v", c.Mode())
	}
	if c.IsPlaying() {
		t.Error("Expected paused")
	}
}

// TestControllerStepping tests step bounds in scrubbing mode.
func TestControllerStepping(t *testing.T) {
	c := newTestController(5)
	c.SeekTo(1)

	c.StepBackward()
	if c.Pos().Index != 0 {
		t.Errorf("Expected index 0, got %d", c.Pos().Index)
	}
	c.StepBackward()
	if c.Pos().Index != 0 {
		t.Errorf("Expected floor at 0, got %d", c.Pos().Index)
	}

	c.SeekTo(3)
	c.StepForward()
	if c.Pos().Index != 4 {
		t.Errorf("Expected index 4, got %d", c.Pos().Index)
	}
	c.StepForward()
	if c.Pos().Index != 4 {
		t.Errorf("Expected ceiling at 4, got %d", c.Pos().Index)
	}
}

// TestControllerGoLive tests returning to the live feeds.
func TestControllerGoLive(t *testing.T) {
	c := newTestController(5)
	c.SeekTo(3)
	c.Play()

	c.GoLive()

	if c.Mode() != ModeLive {
		t.Errorf("Expected live, got %v", c.Mode())
	}
	if c.IsPlaying() {
		t.Error("Expected paused")
	}
	if pos := c.Pos(); pos.Index != 0 || pos.Progress != 0 {
		t.Errorf("Expected (0,0), got (%d,%f)", pos.Index, pos.Progress)
	}
}

// TestControllerSpeedScaling tests that advancing by one sampling interval
// at speed 1 crosses exactly one segment, and at speed 2 crosses two.
func TestControllerSpeedScaling(t *testing.T) {
	t.Run("Speed 1", func(t *testing.T) {
		c := newTestController(10)
		c.Play()
		c.Advance(testInterval)
		if pos := c.Pos(); pos.Index != 1 || pos.Progress != 0 {
			t.Errorf("Expected (1, 0), got (%d, %f)", pos.Index, pos.Progress)
		}
	})

	t.Run("Speed 2", func(t *testing.T) {
		c := newTestController(10)
		c.Play()
		c.SetSpeed(2)
		c.Advance(testInterval)
		if pos := c.Pos(); pos.Index != 2 || pos.Progress != 0 {
			t.Errorf("Expected (2, 0), got (%d, %f)", pos.Index, pos.Progress)
		}
	})

	t.Run("Speed 0.5", func(t *testing.T) {
		c := newTestController(10)
		c.Play()
		c.SetSpeed(0.5)
		c.Advance(testInterval)
		if pos := c.Pos(); pos.Index != 0 || pos.Progress != 0.5 {
			t.Errorf("Expected (0, 0.5), got (%d, %f)", pos.Index, pos.Progress)
		}
	})

	t.Run("Invalid speed ignored", func(t *testing.T) {
		c := newTestController(10)
		c.SetSpeed(3)
		if c.Speed() != 1 {
			t.Errorf("Expected speed unchanged at 1, got %f", c.Speed())
		}
	})
}

// TestControllerAdvanceToEnd tests end-of-buffer clamping.
func TestControllerAdvanceToEnd(t *testing.T) {
	c := newTestController(4)
	c.Play()

	// 4 snapshots = 3 segments; advance far past the end.
	c.Advance(10 * testInterval)

	if pos := c.Pos(); pos.Index != 3 || pos.Progress != 0 {
		t.Errorf("Expected clamp to final (3, 0), got (%d, %f)", pos.Index, pos.Progress)
	}
	if c.IsPlaying() {
		t.Error("Expected playback stopped at the end")
	}
}

// TestControllerAdvancePartial tests fractional accumulation across calls.
func TestControllerAdvancePartial(t *testing.T) {
	c := newTestController(10)
	c.Play()

	c.Advance(testInterval / 3)
	c.Advance(testInterval / 3)

	pos := c.Pos()
	if pos.Index != 0 {
		t.Errorf("Expected index 0, got %d", pos.Index)
	}
	if pos.Progress < 0.6 || pos.Progress > 0.7 {
		t.Errorf("Expected progress ~0.667, got %f", pos.Progress)
	}
}

// TestControllerDurations tests the read-only timing accessors.
func TestControllerDurations(t *testing.T) {
	c := newTestController(21)

	if got := c.TotalDuration(); got != 20*testInterval {
		t.Errorf("Expected total %v, got %v", 20*testInterval, got)
	}

	c.SeekTo(4)
	c.Play()
	c.Advance(testInterval / 2)
	want := time.Duration(4.5 * float64(testInterval))
	if got := c.CurrentTime(); got != want {
		t.Errorf("Expected current %v, got %v", want, got)
	}
}

// TestControllerImported tests the imported buffer lifecycle.
func TestControllerImported(t *testing.T) {
	c := newTestController(5)
	c.SeekTo(2)

	c.SetImported(NewBufferFrom(3).Snapshots())

	if c.Mode() != ModeScrubbingImported {
		t.Fatalf("Expected scrubbingImported, got %v", c.Mode())
	}
	if pos := c.Pos(); pos.Index != 0 || pos.Progress != 0 {
		t.Errorf("Expected position reset, got (%d,%f)", pos.Index, pos.Progress)
	}
	if c.ActiveBuffer().Len() != 3 {
		t.Errorf("Expected imported buffer active with 3 snapshots, got %d", c.ActiveBuffer().Len())
	}

	c.ClearImported()
	if c.Mode() != ModeLive {
		t.Errorf("Expected return to live, got %v", c.Mode())
	}
	if c.ActiveBuffer().Len() != 5 {
		t.Errorf("Expected recording buffer active again, got %d", c.ActiveBuffer().Len())
	}
}

// NewBufferFrom builds a buffer with n sequential test snapshots.
func NewBufferFrom(n int) *Buffer {
	buf := NewBuffer(n)
	for i := 0; i < n; i++ {
		buf.Append(snap(i))
	}
	return buf
}
