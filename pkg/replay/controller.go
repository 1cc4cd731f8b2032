package replay

import (
	"time"

	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

// Mode identifies where playback data is sourced from.
type Mode int

const (
	// ModeLive sources states directly from the fused feeds.
	ModeLive Mode = iota

	// ModeScrubbingRecorded plays back the live recording buffer.
	ModeScrubbingRecorded

	// ModeScrubbingImported plays back a buffer loaded from a replay file.
	ModeScrubbingImported
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeScrubbingRecorded:
		return "scrubbingRecorded"
	case ModeScrubbingImported:
		return "scrubbingImported"
	default:
		return "unknown"
	}
}

// PlaybackSpeeds are the selectable playback rate multipliers.
var PlaybackSpeeds = []float64{0.5, 1, 2, 4}

// ValidSpeed reports whether s is one of the selectable speeds.
func ValidSpeed(s float64) bool {
	for _, v := range PlaybackSpeeds {
		if v == s {
			return true
		}
	}
	return false
}

// Position is a location inside the active buffer: between snapshot[Index]
// and snapshot[Index+1], Progress fraction through that segment. At the
// final snapshot Index == len-1, Progress == 0, and the display holds
// static.
type Position struct {
	Index    int
	Progress float64
}

// Controller is the playback state machine. It exclusively owns mode,
// position, and speed; it never mutates the buffers beyond replacing the
// imported one.
//
// Controller is not safe for concurrent use; the Engine serializes access.
type Controller struct {
	recorded *Buffer
	imported *Buffer

	mode    Mode
	playing bool
	speed   float64
	pos     Position

	// samplingInterval is the nominal time one segment represents
	samplingInterval time.Duration

	// Timing anchors, re-set at play and speed changes so a speed change
	// takes effect without a visible jump.
	segmentStartWall  time.Time
	segmentStartIndex int

	now func() time.Time
}

// NewController creates a paused, live-mode controller over the two buffers.
func NewController(recorded, imported *Buffer, samplingInterval time.Duration) *Controller {
	return &Controller{
		recorded:         recorded,
		imported:         imported,
		mode:             ModeLive,
		speed:            1,
		samplingInterval: samplingInterval,
		now:              time.Now,
	}
}

// ActiveBuffer returns the buffer playback currently addresses: the imported
// buffer while scrubbing an import, the live recording otherwise.
func (c *Controller) ActiveBuffer() *Buffer {
	if c.mode == ModeScrubbingImported {
		return c.imported
	}
	return c.recorded
}

// Mode returns the current playback mode.
func (c *Controller) Mode() Mode { return c.mode }

// IsPlaying reports whether playback is advancing.
func (c *Controller) IsPlaying() bool { return c.playing }

// Speed returns the current playback rate multiplier.
func (c *Controller) Speed() float64 { return c.speed }

// Pos returns the current playback position.
func (c *Controller) Pos() Position { return c.pos }

// Play starts playback. A no-op with fewer than two snapshots in the active
// buffer. Starting at the final snapshot restarts from the beginning.
// From live mode this transitions to scrubbing the recording.
func (c *Controller) Play() {
	active := c.ActiveBuffer()
	if active.Len() < 2 {
		return
	}
	if c.pos.Index >= active.Len()-1 {
		c.pos = Position{}
	}
	if c.mode == ModeLive {
		c.mode = ModeScrubbingRecorded
	}
	c.playing = true
	c.anchor()
}

// Pause stops playback without changing mode or position.
func (c *Controller) Pause() {
	c.playing = false
}

// SeekTo jumps to a snapshot index, clamped to the buffer. Seeking pauses
// playback and exits live mode.
func (c *Controller) SeekTo(index int) {
	active := c.ActiveBuffer()
	if active.Len() == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > active.Len()-1 {
		index = active.Len() - 1
	}
	c.pos = Position{Index: index}
	c.playing = false
	if c.mode == ModeLive {
		c.mode = ModeScrubbingRecorded
	}
}

// StepBackward moves one snapshot back. From live mode it lands on the
// second-to-last snapshot so the visible pair is "one interval ago → most
// recent"; from scrubbing it decrements with a floor of zero. Always pauses
// and exits live mode.
func (c *Controller) StepBackward() {
	active := c.ActiveBuffer()
	if active.Len() < 2 {
		return
	}
	if c.mode == ModeLive {
		c.pos = Position{Index: active.Len() - 2}
		c.mode = ModeScrubbingRecorded
	} else {
		index := c.pos.Index - 1
		if index < 0 {
			index = 0
		}
		c.pos = Position{Index: index}
	}
	c.playing = false
}

// StepForward moves one snapshot ahead, with a ceiling at the final
// snapshot. Pauses and exits live mode.
func (c *Controller) StepForward() {
	active := c.ActiveBuffer()
	if active.Len() == 0 {
		return
	}
	index := c.pos.Index + 1
	if index > active.Len()-1 {
		index = active.Len() - 1
	}
	c.pos = Position{Index: index}
	c.playing = false
	if c.mode == ModeLive {
		c.mode = ModeScrubbingRecorded
	}
}

// GoLive forces live mode, paused. Position is reset; it carries no meaning
// while live.
func (c *Controller) GoLive() {
	c.mode = ModeLive
	c.playing = false
	c.pos = Position{}
}

// SetSpeed changes the playback rate. Invalid speeds are ignored. The
// timing anchors are re-set so the change takes effect immediately without
// a visible jump.
func (c *Controller) SetSpeed(speed float64) {
	if !ValidSpeed(speed) {
		return
	}
	c.speed = speed
	c.anchor()
}

// SetImported replaces the imported buffer contents and switches to
// scrubbing it from the start, paused.
func (c *Controller) SetImported(snapshots []telemetry.Snapshot) {
	c.imported.Replace(snapshots)
	c.mode = ModeScrubbingImported
	c.pos = Position{}
	c.playing = false
}

// ClearImported discards the imported buffer. If it was being scrubbed,
// mode returns to live.
func (c *Controller) ClearImported() {
	c.imported.Clear()
	if c.mode == ModeScrubbingImported {
		c.GoLive()
	}
}

// ResetPosition rewinds to (0, 0) without touching mode. Called when the
// active buffer is cleared.
func (c *Controller) ResetPosition() {
	c.pos = Position{}
}

// Advance moves playback forward by elapsed wall time scaled by speed.
// Only meaningful while playing. Progress accumulates per call; whole
// segments carry into the index, and reaching the end clamps to the final
// snapshot and stops playback.
func (c *Controller) Advance(elapsed time.Duration) {
	if !c.playing {
		return
	}
	length := c.ActiveBuffer().Len()
	if length < 2 {
		c.playing = false
		return
	}

	newProgress := c.pos.Progress + float64(elapsed)*c.speed/float64(c.samplingInterval)
	index := c.pos.Index
	for newProgress >= 1 && index < length-2 {
		newProgress--
		index++
	}
	if index >= length-2 && newProgress >= 1 {
		c.pos = Position{Index: length - 1}
		c.playing = false
		return
	}
	if newProgress > 1 {
		newProgress = 1
	}
	c.pos = Position{Index: index, Progress: newProgress}
}

// TotalDuration returns how much scrubbable time the active buffer covers.
func (c *Controller) TotalDuration() time.Duration {
	length := c.ActiveBuffer().Len()
	if length < 2 {
		return 0
	}
	return time.Duration(length-1) * c.samplingInterval
}

// CurrentTime returns the playback offset from the start of the active
// buffer.
func (c *Controller) CurrentTime() time.Duration {
	return time.Duration((float64(c.pos.Index) + c.pos.Progress) * float64(c.samplingInterval))
}

func (c *Controller) anchor() {
	c.segmentStartWall = c.now()
	c.segmentStartIndex = c.pos.Index
}
